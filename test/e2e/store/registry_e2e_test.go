package store

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/internal/store"
)

var _ = Describe("Registry E2E", func() {
	var (
		registry *store.Registry
		ctx      context.Context
		now      time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll()
		now = time.Now().UTC().Truncate(time.Second)

		var err error
		registry, err = store.NewRegistry(db, testLogger)
		Expect(err).NotTo(HaveOccurred())

		Expect(db.Create(&store.User{
			ID: 1, Name: "Amelia", Email: "amelia@example.com", Active: true,
		}).Error).NotTo(HaveOccurred())
		Expect(db.Create(&store.CurrencyPreference{
			UserID: 1, Code: "EUR", Symbol: "€", Rate: 0.3, ConversionFactor: 1.0,
		}).Error).NotTo(HaveOccurred())
	})

	Describe("ActiveUsers and CurrencyPreferenceFor", func() {
		It("lists only active accounts", func() {
			Expect(db.Create(&store.User{
				ID: 2, Name: "Idle", Email: "idle@example.com", Active: false,
			}).Error).NotTo(HaveOccurred())

			users, err := registry.ActiveUsers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(1))
			Expect(users[0].Email).To(Equal("amelia@example.com"))
		})

		It("reads the live preference", func() {
			pref, err := registry.CurrencyPreferenceFor(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(pref.Rate).To(Equal(0.3))

			Expect(db.Model(&store.CurrencyPreference{}).
				Where("user_id = ?", 1).
				Update("rate", 0.5).Error).NotTo(HaveOccurred())

			pref, err = registry.CurrencyPreferenceFor(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(pref.Rate).To(Equal(0.5))
		})

		It("returns not found for a user without a preference", func() {
			Expect(db.Create(&store.User{
				ID: 3, Name: "New", Email: "new@example.com", Active: true,
			}).Error).NotTo(HaveOccurred())

			_, err := registry.CurrencyPreferenceFor(ctx, 3)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("inactivity bookkeeping", func() {
		BeforeEach(func() {
			Expect(db.Create(&store.Device{
				DeviceID: "dev-quiet", Name: "Freezer", Location: "Basement",
				Status: store.StatusOnline, UserID: 1, RatedWatts: 200,
				LastSeen: now.Add(-25 * time.Hour),
			}).Error).NotTo(HaveOccurred())
		})

		It("flips stale devices offline and lists them once", func() {
			cutoff := now.Add(-24 * time.Hour)

			flipped, err := registry.MarkStale(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(flipped).To(Equal(int64(1)))

			inactive, err := registry.InactiveDevices(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(HaveLen(1))
			Expect(inactive[0].DeviceID).To(Equal("dev-quiet"))
			Expect(inactive[0].OwnerEmail).To(Equal("amelia@example.com"))

			Expect(registry.MarkAlerted(ctx, "dev-quiet", now)).To(Succeed())

			inactive, err = registry.InactiveDevices(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(BeEmpty())
		})

		It("re-arms the alert when the device reports again", func() {
			cutoff := now.Add(-24 * time.Hour)

			_, err := registry.MarkStale(ctx, cutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(registry.MarkAlerted(ctx, "dev-quiet", now)).To(Succeed())

			// Device reports, goes quiet again a day later.
			Expect(registry.MarkSeen(ctx, "dev-quiet", now.Add(time.Minute))).To(Succeed())

			later := now.Add(26 * time.Hour)
			laterCutoff := later.Add(-24 * time.Hour)

			_, err = registry.MarkStale(ctx, laterCutoff)
			Expect(err).NotTo(HaveOccurred())

			inactive, err := registry.InactiveDevices(ctx, laterCutoff)
			Expect(err).NotTo(HaveOccurred())
			Expect(inactive).To(HaveLen(1))
		})
	})

	Describe("controller rated-power invariant", func() {
		controllerID := "ctl-garage"

		BeforeEach(func() {
			Expect(db.Create(&store.Controller{
				ControllerID: controllerID, Name: "Garage Hub", Location: "Garage",
				Status: store.StatusOnline, UserID: 1,
			}).Error).NotTo(HaveOccurred())
			Expect(db.Create(&store.Device{
				DeviceID: "dev-charger", Name: "EV Charger", Location: "Garage",
				Status: store.StatusOnline, UserID: 1, RatedWatts: 7000,
				LastSeen: now,
			}).Error).NotTo(HaveOccurred())
			Expect(db.Create(&store.Device{
				DeviceID: "dev-pump", Name: "Pool Pump", Location: "Garden",
				Status: store.StatusOnline, UserID: 1, RatedWatts: 1000,
				LastSeen: now,
			}).Error).NotTo(HaveOccurred())
		})

		It("tracks attach, detach and status changes", func() {
			Expect(registry.AttachDevice(ctx, "dev-charger", controllerID)).To(Succeed())
			Expect(registry.AttachDevice(ctx, "dev-pump", controllerID)).To(Succeed())

			controller, err := registry.ControllerByID(ctx, controllerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TotalRatedPower).To(Equal(8000.0))
			Expect(controller.Devices).To(HaveLen(2))

			Expect(registry.SetDeviceStatus(ctx, "dev-pump", store.StatusOffline)).To(Succeed())
			controller, err = registry.ControllerByID(ctx, controllerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TotalRatedPower).To(Equal(7000.0))

			Expect(registry.DetachDevice(ctx, "dev-charger")).To(Succeed())
			controller, err = registry.ControllerByID(ctx, controllerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TotalRatedPower).To(BeZero())
		})

		It("lists controller devices for the simulation", func() {
			Expect(registry.AttachDevice(ctx, "dev-charger", controllerID)).To(Succeed())

			devices, err := registry.OnlineControllerDevices(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(HaveLen(1))
			Expect(devices[0].DeviceID).To(Equal("dev-charger"))

			owned, err := registry.OnlineOwnedDevices(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(owned).To(HaveLen(1))
			Expect(owned[0].DeviceID).To(Equal("dev-pump"))
		})
	})
})
