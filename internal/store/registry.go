package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound reports a lookup for an entity that does not exist.
var ErrNotFound = errors.New("store: not found")

// InactiveDevice is the monitor's view of a device past the inactivity
// threshold: identity, owner contact, and when it was last seen.
type InactiveDevice struct {
	DeviceID   string    `gorm:"column:device_id"`
	Name       string    `gorm:"column:name"`
	OwnerEmail string    `gorm:"column:owner_email"`
	LastSeen   time.Time `gorm:"column:last_seen"`
}

// Registry is the PostgreSQL-backed view over users, devices and controllers
// consumed by the schedulers, the aggregator and the inactivity monitor.
type Registry struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRegistry creates a Registry backed by the given database handle.
func NewRegistry(db *gorm.DB, logger *slog.Logger) (*Registry, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Registry{db: db, logger: logger}, nil
}

// ActiveUsers returns all users participating in the simulation.
func (r *Registry) ActiveUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Where("active").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}

// CurrencyPreferenceFor returns a user's live currency configuration. It is
// resolved at call time, never cached, because preferences can change
// between scheduler ticks.
func (r *Registry) CurrencyPreferenceFor(ctx context.Context, userID uint) (CurrencyPreference, error) {
	var pref CurrencyPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CurrencyPreference{}, fmt.Errorf("currency preference for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return CurrencyPreference{}, fmt.Errorf("failed to load currency preference: %w", err)
	}
	return pref, nil
}

// OnlineOwnedDevices returns a user's directly owned online devices, i.e.
// those not attached to any controller.
func (r *Registry) OnlineOwnedDevices(ctx context.Context, userID uint) ([]Device, error) {
	var devices []Device
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND controller_id IS NULL", userID, StatusOnline).
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owned devices: %w", err)
	}
	return devices, nil
}

// OnlineControllerDevices returns a user's online devices attached to an
// online controller and currently connected, i.e. the population contributing
// to controller totals.
func (r *Registry) OnlineControllerDevices(ctx context.Context, userID uint) ([]Device, error) {
	var devices []Device
	err := r.db.WithContext(ctx).
		Joins("JOIN controllers ON controllers.controller_id = devices.controller_id").
		Where("devices.user_id = ? AND devices.status = ? AND devices.connected AND controllers.status = ?",
			userID, StatusOnline, StatusOnline).
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list controller devices: %w", err)
	}
	return devices, nil
}

// DevicesFor returns all of a user's devices regardless of status.
func (r *Registry) DevicesFor(ctx context.Context, userID uint) ([]Device, error) {
	var devices []Device
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// ControllerByID returns a controller and its attached devices.
func (r *Registry) ControllerByID(ctx context.Context, controllerID string) (Controller, error) {
	var controller Controller
	err := r.db.WithContext(ctx).
		Preload("Devices").
		Where("controller_id = ?", controllerID).
		First(&controller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Controller{}, fmt.Errorf("controller %s: %w", controllerID, ErrNotFound)
	}
	if err != nil {
		return Controller{}, fmt.Errorf("failed to load controller: %w", err)
	}
	return controller, nil
}

// InactiveDevices returns offline devices whose last report predates the
// cutoff and which have not yet been alerted for the current inactivity
// period. A device whose last_seen advanced past its last alert re-arms
// automatically.
func (r *Registry) InactiveDevices(ctx context.Context, cutoff time.Time) ([]InactiveDevice, error) {
	var inactive []InactiveDevice
	err := r.db.WithContext(ctx).Raw(
		`SELECT d.device_id, d.name, d.last_seen, u.email AS owner_email
		 FROM devices d
		 JOIN users u ON u.id = d.user_id
		 WHERE d.status = ?
		   AND d.last_seen < ?
		   AND (d.last_alerted_at IS NULL OR d.last_alerted_at < d.last_seen)
		 ORDER BY d.device_id`, StatusOffline, cutoff,
	).Scan(&inactive).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive devices: %w", err)
	}
	return inactive, nil
}

// MarkAlerted records that an inactivity alert was delivered for a device,
// suppressing repeats until the device reports again.
func (r *Registry) MarkAlerted(ctx context.Context, deviceID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Update("last_alerted_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to mark device alerted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// MarkSeen records a device report: last_seen advances and the device is
// flipped online. Advancing last_seen past last_alerted_at re-arms the
// inactivity alert.
func (r *Registry) MarkSeen(ctx context.Context, deviceID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"last_seen": at,
			"status":    StatusOnline,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark device seen: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// MarkStale flips online devices whose last report predates the cutoff to
// offline and returns how many transitioned. Controller rated-power totals
// are re-derived afterwards since attached devices may have dropped out.
func (r *Registry) MarkStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("status = ? AND last_seen < ?", StatusOnline, cutoff).
		Update("status", StatusOffline)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark stale devices: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		err := r.db.WithContext(ctx).Exec(
			`UPDATE controllers SET total_rated_power = (
				SELECT COALESCE(SUM(rated_watts), 0)
				FROM devices
				WHERE devices.controller_id = controllers.controller_id
				  AND connected AND devices.status = ?
			 )`, StatusOnline,
		).Error
		if err != nil {
			return res.RowsAffected, fmt.Errorf("failed to recompute controller power: %w", err)
		}
	}

	return res.RowsAffected, nil
}

// SetDeviceStatus toggles a device online or offline.
func (r *Registry) SetDeviceStatus(ctx context.Context, deviceID, status string) error {
	if status != StatusOnline && status != StatusOffline {
		return fmt.Errorf("invalid device status %q", status)
	}

	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to set device status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}

	// Attached devices changing status shift their controller's rated total.
	var device Device
	if err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error; err == nil && device.ControllerID != nil {
		return r.recomputeControllerPower(ctx, *device.ControllerID)
	}
	return nil
}

// AttachDevice links a device to a controller and refreshes the controller's
// rated-power total.
func (r *Registry) AttachDevice(ctx context.Context, deviceID, controllerID string) error {
	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"controller_id": controllerID,
			"connected":     true,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to attach device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}

	return r.recomputeControllerPower(ctx, controllerID)
}

// DetachDevice unlinks a device from its controller and refreshes the
// controller's rated-power total.
func (r *Registry) DetachDevice(ctx context.Context, deviceID string) error {
	var device Device
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	if device.ControllerID == nil {
		return nil
	}
	controllerID := *device.ControllerID

	res := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"controller_id": nil,
			"connected":     false,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to detach device: %w", res.Error)
	}

	return r.recomputeControllerPower(ctx, controllerID)
}

// recomputeControllerPower re-derives the total_rated_power invariant: the
// sum of rated watts of connected, online devices attached to the controller.
func (r *Registry) recomputeControllerPower(ctx context.Context, controllerID string) error {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE controllers SET total_rated_power = (
			SELECT COALESCE(SUM(rated_watts), 0)
			FROM devices
			WHERE controller_id = ? AND connected AND status = ?
		 ) WHERE controller_id = ?`, controllerID, StatusOnline, controllerID,
	).Error
	if err != nil {
		return fmt.Errorf("failed to recompute controller power: %w", err)
	}
	return nil
}
