package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemorySampleStore is an in-memory SampleStore with the same semantics as
// the PostgreSQL implementation. It backs unit tests and local development
// without a database. Writes are append-only; eviction rewrites the slice
// under the lock but never blocks between operations.
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples []TelemetrySample
	nextID  uint
	nowFunc func() time.Time
}

// NewMemorySampleStore creates an empty in-memory sample store.
func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{
		nextID:  1,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the store's clock. Used by tests to pin eviction
// cutoffs.
func (s *MemorySampleStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// Len returns the number of stored samples.
func (s *MemorySampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// InsertBatch implements SampleStore.
func (s *MemorySampleStore) InsertBatch(_ context.Context, samples []TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		sample.ID = s.nextID
		s.nextID++
		s.samples = append(s.samples, sample)
	}
	return nil
}

// LatestPerDevice implements SampleStore. Ties on timestamp resolve to the
// sample appended last, matching the database's primary-key tie-break.
func (s *MemorySampleStore) LatestPerDevice(_ context.Context, userID uint) ([]TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]TelemetrySample)
	for _, sample := range s.samples {
		if sample.UserID != userID {
			continue
		}
		current, ok := latest[sample.DeviceID]
		if !ok || !sample.Timestamp.Before(current.Timestamp) {
			latest[sample.DeviceID] = sample
		}
	}

	out := make([]TelemetrySample, 0, len(latest))
	for _, sample := range latest {
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// RangeByDevice implements SampleStore.
func (s *MemorySampleStore) RangeByDevice(_ context.Context, userID uint, deviceID string, since time.Time) ([]TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TelemetrySample
	for _, sample := range s.samples {
		if sample.UserID == userID && sample.DeviceID == deviceID && !sample.Timestamp.Before(since) {
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// AggregateDaily implements SampleStore.
func (s *MemorySampleStore) AggregateDaily(_ context.Context, userID uint, since time.Time) ([]DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[time.Time]*DailyAggregate)
	for _, sample := range s.samples {
		if sample.UserID != userID || sample.Timestamp.Before(since) {
			continue
		}
		day := time.Date(sample.Timestamp.Year(), sample.Timestamp.Month(), sample.Timestamp.Day(),
			0, 0, 0, 0, sample.Timestamp.Location())
		bucket, ok := buckets[day]
		if !ok {
			bucket = &DailyAggregate{Day: day}
			buckets[day] = bucket
		}
		bucket.TotalUsageKWh += sample.UsageKWh()
		bucket.TotalCost += sample.CostPerSecond
		bucket.SampleCount++
	}

	out := make([]DailyAggregate, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// UsageSince implements SampleStore.
func (s *MemorySampleStore) UsageSince(_ context.Context, userID uint, since time.Time) (UsageTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals UsageTotals
	for _, sample := range s.samples {
		if sample.UserID != userID || sample.Timestamp.Before(since) {
			continue
		}
		totals.TotalUsageKWh += sample.UsageKWh()
		totals.TotalCost += sample.CostPerSecond
		totals.SampleCount++
	}
	return totals, nil
}

// EvictOlderThan implements SampleStore.
func (s *MemorySampleStore) EvictOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, ErrInvalidRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFunc().Add(-retention)
	kept := s.samples[:0]
	var removed int64
	for _, sample := range s.samples {
		if sample.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, sample)
	}
	s.samples = kept
	return removed, nil
}

// Ensure MemorySampleStore implements SampleStore.
var _ SampleStore = (*MemorySampleStore)(nil)

// MemoryFleet is an in-memory stand-in for the Registry: users, preferences,
// devices and controllers held in process. It serves unit tests and local
// development with the same query semantics as the database registry.
type MemoryFleet struct {
	mu          sync.RWMutex
	users       map[uint]User
	prefs       map[uint]CurrencyPreference
	devices     map[string]*Device
	controllers map[string]*Controller
}

// NewMemoryFleet creates an empty in-memory fleet.
func NewMemoryFleet() *MemoryFleet {
	return &MemoryFleet{
		users:       make(map[uint]User),
		prefs:       make(map[uint]CurrencyPreference),
		devices:     make(map[string]*Device),
		controllers: make(map[string]*Controller),
	}
}

// AddUser registers a user and their currency preference.
func (f *MemoryFleet) AddUser(user User, pref CurrencyPreference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	pref.UserID = user.ID
	f.prefs[user.ID] = pref
}

// AddDevice registers a device.
func (f *MemoryFleet) AddDevice(device Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := device
	f.devices[device.DeviceID] = &d
}

// AddController registers a controller.
func (f *MemoryFleet) AddController(controller Controller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := controller
	f.controllers[controller.ControllerID] = &c
}

// SetPreference replaces a user's currency preference.
func (f *MemoryFleet) SetPreference(userID uint, pref CurrencyPreference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pref.UserID = userID
	f.prefs[userID] = pref
}

// ActiveUsers mirrors Registry.ActiveUsers.
func (f *MemoryFleet) ActiveUsers(_ context.Context) ([]User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []User
	for _, user := range f.users {
		if user.Active {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CurrencyPreferenceFor mirrors Registry.CurrencyPreferenceFor.
func (f *MemoryFleet) CurrencyPreferenceFor(_ context.Context, userID uint) (CurrencyPreference, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pref, ok := f.prefs[userID]
	if !ok {
		return CurrencyPreference{}, fmt.Errorf("currency preference for user %d: %w", userID, ErrNotFound)
	}
	return pref, nil
}

// OnlineOwnedDevices mirrors Registry.OnlineOwnedDevices.
func (f *MemoryFleet) OnlineOwnedDevices(_ context.Context, userID uint) ([]Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Device
	for _, device := range f.devices {
		if device.UserID == userID && device.Status == StatusOnline && device.ControllerID == nil {
			out = append(out, *device)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// OnlineControllerDevices mirrors Registry.OnlineControllerDevices.
func (f *MemoryFleet) OnlineControllerDevices(_ context.Context, userID uint) ([]Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Device
	for _, device := range f.devices {
		if device.UserID != userID || device.Status != StatusOnline || !device.Connected || device.ControllerID == nil {
			continue
		}
		controller, ok := f.controllers[*device.ControllerID]
		if !ok || controller.Status != StatusOnline {
			continue
		}
		out = append(out, *device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// DevicesFor mirrors Registry.DevicesFor.
func (f *MemoryFleet) DevicesFor(_ context.Context, userID uint) ([]Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Device
	for _, device := range f.devices {
		if device.UserID == userID {
			out = append(out, *device)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// ControllerByID mirrors Registry.ControllerByID.
func (f *MemoryFleet) ControllerByID(_ context.Context, controllerID string) (Controller, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	controller, ok := f.controllers[controllerID]
	if !ok {
		return Controller{}, fmt.Errorf("controller %s: %w", controllerID, ErrNotFound)
	}

	out := *controller
	out.Devices = nil
	for _, device := range f.devices {
		if device.ControllerID != nil && *device.ControllerID == controllerID {
			out.Devices = append(out.Devices, *device)
		}
	}
	sort.Slice(out.Devices, func(i, j int) bool { return out.Devices[i].DeviceID < out.Devices[j].DeviceID })
	return out, nil
}

// InactiveDevices mirrors Registry.InactiveDevices.
func (f *MemoryFleet) InactiveDevices(_ context.Context, cutoff time.Time) ([]InactiveDevice, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []InactiveDevice
	for _, device := range f.devices {
		if device.Status != StatusOffline || !device.LastSeen.Before(cutoff) {
			continue
		}
		if device.LastAlertedAt != nil && !device.LastAlertedAt.Before(device.LastSeen) {
			continue
		}
		owner, ok := f.users[device.UserID]
		if !ok {
			continue
		}
		out = append(out, InactiveDevice{
			DeviceID:   device.DeviceID,
			Name:       device.Name,
			OwnerEmail: owner.Email,
			LastSeen:   device.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// MarkAlerted mirrors Registry.MarkAlerted.
func (f *MemoryFleet) MarkAlerted(_ context.Context, deviceID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	device, ok := f.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	device.LastAlertedAt = &at
	return nil
}

// MarkSeen mirrors Registry.MarkSeen.
func (f *MemoryFleet) MarkSeen(_ context.Context, deviceID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	device, ok := f.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	device.LastSeen = at
	device.Status = StatusOnline
	return nil
}

// MarkStale mirrors Registry.MarkStale.
func (f *MemoryFleet) MarkStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var flipped int64
	for _, device := range f.devices {
		if device.Status == StatusOnline && device.LastSeen.Before(cutoff) {
			device.Status = StatusOffline
			flipped++
		}
	}
	if flipped > 0 {
		for id := range f.controllers {
			f.recomputeControllerPower(id)
		}
	}
	return flipped, nil
}

// SetDeviceStatus mirrors Registry.SetDeviceStatus.
func (f *MemoryFleet) SetDeviceStatus(_ context.Context, deviceID, status string) error {
	if status != StatusOnline && status != StatusOffline {
		return fmt.Errorf("invalid device status %q", status)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	device, ok := f.devices[deviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	device.Status = status
	if device.ControllerID != nil {
		f.recomputeControllerPower(*device.ControllerID)
	}
	return nil
}

func (f *MemoryFleet) recomputeControllerPower(controllerID string) {
	controller, ok := f.controllers[controllerID]
	if !ok {
		return
	}
	var total float64
	for _, device := range f.devices {
		if device.ControllerID != nil && *device.ControllerID == controllerID &&
			device.Connected && device.Status == StatusOnline {
			total += device.RatedWatts
		}
	}
	controller.TotalRatedPower = total
}
