package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/internal/store"
)

func sampleAt(userID uint, deviceID string, ts time.Time, watts float64) store.TelemetrySample {
	return store.TelemetrySample{
		UserID:        userID,
		DeviceID:      deviceID,
		Timestamp:     ts,
		PowerWatts:    watts,
		Rate:          0.25,
		CurrencyCode:  "USD",
		CostPerSecond: watts / 1000 * 0.25 / 3600,
	}
}

var _ = Describe("MemorySampleStore", func() {
	var (
		ctx   context.Context
		s     *store.MemorySampleStore
		base  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemorySampleStore()
		base = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	})

	Describe("InsertBatch", func() {
		It("should accept an empty batch", func() {
			Expect(s.InsertBatch(ctx, nil)).To(Succeed())
			Expect(s.Len()).To(BeZero())
		})

		It("should append all samples in the batch", func() {
			batch := []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 100),
				sampleAt(1, "dev-b", base, 200),
			}
			Expect(s.InsertBatch(ctx, batch)).To(Succeed())
			Expect(s.Len()).To(Equal(2))
		})
	})

	Describe("LatestPerDevice", func() {
		It("should return the most recent sample per device", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 100),
				sampleAt(1, "dev-a", base.Add(time.Minute), 150),
				sampleAt(1, "dev-b", base, 300),
			})).To(Succeed())

			latest, err := s.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(2))
			Expect(latest[0].DeviceID).To(Equal("dev-a"))
			Expect(latest[0].PowerWatts).To(Equal(150.0))
			Expect(latest[1].DeviceID).To(Equal("dev-b"))
		})

		It("should resolve timestamp ties by insertion order, last inserted wins", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 100),
				sampleAt(1, "dev-a", base.Add(time.Second), 200),
				sampleAt(1, "dev-a", base.Add(time.Second), 300),
			})).To(Succeed())

			latest, err := s.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(1))
			Expect(latest[0].PowerWatts).To(Equal(300.0))
		})

		It("should not leak samples across users", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 100),
				sampleAt(2, "dev-z", base, 900),
			})).To(Succeed())

			latest, err := s.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(1))
			Expect(latest[0].DeviceID).To(Equal("dev-a"))
		})
	})

	Describe("RangeByDevice", func() {
		It("should return samples at or after since, ascending", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base.Add(2*time.Minute), 300),
				sampleAt(1, "dev-a", base, 100),
				sampleAt(1, "dev-a", base.Add(time.Minute), 200),
				sampleAt(1, "dev-a", base.Add(-time.Hour), 50),
			})).To(Succeed())

			rng, err := s.RangeByDevice(ctx, 1, "dev-a", base)
			Expect(err).NotTo(HaveOccurred())
			Expect(rng).To(HaveLen(3))
			Expect(rng[0].PowerWatts).To(Equal(100.0))
			Expect(rng[1].PowerWatts).To(Equal(200.0))
			Expect(rng[2].PowerWatts).To(Equal(300.0))
		})
	})

	Describe("AggregateDaily", func() {
		It("should bucket samples by calendar day", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 3600*1000), // 1 kWh-second at 3.6MW
				sampleAt(1, "dev-a", base.Add(time.Hour), 3600*1000),
				sampleAt(1, "dev-a", base.Add(24*time.Hour), 3600*1000),
			})).To(Succeed())

			days, err := s.AggregateDaily(ctx, 1, base.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(HaveLen(2))
			Expect(days[0].SampleCount).To(Equal(int64(2)))
			Expect(days[0].TotalUsageKWh).To(BeNumerically("~", 2.0, 1e-9))
			Expect(days[1].SampleCount).To(Equal(int64(1)))
			Expect(days[0].Day.Before(days[1].Day)).To(BeTrue())
		})
	})

	Describe("UsageSince", func() {
		It("should sum usage, cost and count over the window", func() {
			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 1000),
				sampleAt(1, "dev-b", base.Add(time.Minute), 2000),
				sampleAt(1, "dev-a", base.Add(-time.Hour), 500), // outside window
			})).To(Succeed())

			totals, err := s.UsageSince(ctx, 1, base)
			Expect(err).NotTo(HaveOccurred())
			Expect(totals.SampleCount).To(Equal(int64(2)))
			Expect(totals.TotalUsageKWh).To(BeNumerically("~", 3.0/3600, 1e-9))
		})
	})

	Describe("EvictOlderThan", func() {
		It("should reject a non-positive retention window", func() {
			_, err := s.EvictOlderThan(ctx, 0)
			Expect(err).To(MatchError(store.ErrInvalidRetention))
		})

		It("should remove only samples past the window and report the count", func() {
			now := base.Add(40 * 24 * time.Hour)
			s.SetNowFunc(func() time.Time { return now })

			Expect(s.InsertBatch(ctx, []store.TelemetrySample{
				sampleAt(1, "dev-a", base, 100),                   // 40 days old
				sampleAt(1, "dev-a", now.Add(-29*24*time.Hour), 200), // inside window
				sampleAt(1, "dev-a", now.Add(-time.Hour), 300),
			})).To(Succeed())

			removed, err := s.EvictOlderThan(ctx, 30*24*time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(1)))
			Expect(s.Len()).To(Equal(2))
		})
	})
})

var _ = Describe("MemoryFleet", func() {
	var (
		ctx   context.Context
		fleet *store.MemoryFleet
		base  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		fleet = store.NewMemoryFleet()
		base = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

		fleet.AddUser(
			store.User{ID: 1, Email: "ada@example.com", Name: "Ada", Active: true},
			store.CurrencyPreference{Code: "USD", Symbol: "$", Rate: 0.25, ConversionFactor: 1},
		)
		fleet.AddUser(
			store.User{ID: 2, Email: "bas@example.com", Name: "Bas", Active: false},
			store.CurrencyPreference{Code: "EUR", Symbol: "€", Rate: 0.30, ConversionFactor: 0.9},
		)
	})

	Describe("ActiveUsers", func() {
		It("should return only active users", func() {
			users, err := fleet.ActiveUsers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Email).To(Equal("ada@example.com"))
		})
	})

	Describe("CurrencyPreferenceFor", func() {
		It("should return the user's preference", func() {
			pref, err := fleet.CurrencyPreferenceFor(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(pref.Code).To(Equal("USD"))
		})

		It("should report not found for unknown users", func() {
			_, err := fleet.CurrencyPreferenceFor(ctx, 99)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("should reflect live preference changes", func() {
			fleet.SetPreference(1, store.CurrencyPreference{Code: "GBP", Symbol: "£", Rate: 0.4, ConversionFactor: 0.8})

			pref, err := fleet.CurrencyPreferenceFor(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(pref.Code).To(Equal("GBP"))
		})
	})

	Describe("device populations", func() {
		BeforeEach(func() {
			controllerID := "ctl-1"
			fleet.AddController(store.Controller{ControllerID: controllerID, UserID: 1, Status: store.StatusOnline})
			fleet.AddDevice(store.Device{DeviceID: "owned-1", UserID: 1, Status: store.StatusOnline, RatedWatts: 100, LastSeen: base})
			fleet.AddDevice(store.Device{DeviceID: "owned-2", UserID: 1, Status: store.StatusOffline, RatedWatts: 50, LastSeen: base})
			fleet.AddDevice(store.Device{DeviceID: "attached-1", UserID: 1, Status: store.StatusOnline, RatedWatts: 200, ControllerID: &controllerID, Connected: true, LastSeen: base})
		})

		It("should separate owned and controller-attached devices", func() {
			owned, err := fleet.OnlineOwnedDevices(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(owned).To(HaveLen(1))
			Expect(owned[0].DeviceID).To(Equal("owned-1"))

			attached, err := fleet.OnlineControllerDevices(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(attached).To(HaveLen(1))
			Expect(attached[0].DeviceID).To(Equal("attached-1"))
		})

		It("should maintain the controller rated-power total as devices toggle", func() {
			Expect(fleet.SetDeviceStatus(ctx, "attached-1", store.StatusOffline)).To(Succeed())

			controller, err := fleet.ControllerByID(ctx, "ctl-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TotalRatedPower).To(BeZero())

			Expect(fleet.SetDeviceStatus(ctx, "attached-1", store.StatusOnline)).To(Succeed())

			controller, err = fleet.ControllerByID(ctx, "ctl-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TotalRatedPower).To(Equal(200.0))
		})
	})

	Describe("inactivity bookkeeping", func() {
		BeforeEach(func() {
			fleet.AddDevice(store.Device{
				DeviceID:   "stale-1",
				UserID:     1,
				Status:     store.StatusOffline,
				RatedWatts: 60,
				LastSeen:   base.Add(-48 * time.Hour),
			})
		})

		It("should report devices past the cutoff with owner contact", func() {
			inactive, err := fleet.InactiveDevices(ctx, base.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(HaveLen(1))
			Expect(inactive[0].DeviceID).To(Equal("stale-1"))
			Expect(inactive[0].OwnerEmail).To(Equal("ada@example.com"))
		})

		It("should suppress devices already alerted for the current period", func() {
			Expect(fleet.MarkAlerted(ctx, "stale-1", base)).To(Succeed())

			inactive, err := fleet.InactiveDevices(ctx, base.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(BeEmpty())
		})

		It("should re-arm once the device reports again", func() {
			Expect(fleet.MarkAlerted(ctx, "stale-1", base)).To(Succeed())
			Expect(fleet.MarkSeen(ctx, "stale-1", base.Add(time.Hour))).To(Succeed())
			Expect(fleet.SetDeviceStatus(ctx, "stale-1", store.StatusOffline)).To(Succeed())

			// Still inside the threshold window right after reporting.
			inactive, err := fleet.InactiveDevices(ctx, base.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(BeEmpty())

			// Past the threshold again: the advanced last_seen re-armed the alert.
			inactive, err = fleet.InactiveDevices(ctx, base.Add(26*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(HaveLen(1))
		})
	})
})
