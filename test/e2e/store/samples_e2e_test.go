package store

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/internal/store"
)

var _ = Describe("Sample Store E2E", func() {
	var (
		samples *store.DBSampleStore
		ctx     context.Context
	)

	newSample := func(userID uint, deviceID string, ts time.Time, watts float64) store.TelemetrySample {
		return store.TelemetrySample{
			UserID:         userID,
			DeviceID:       deviceID,
			Timestamp:      ts,
			PowerWatts:     watts,
			Voltage:        220,
			Current:        watts / 220,
			Frequency:      50,
			Rate:           0.3,
			CurrencyCode:   "EUR",
			CurrencySymbol: "€",
			CostPerSecond:  watts / 1000 * 0.3 / 3600,
			CostPerHour:    watts / 1000 * 0.3,
			CostPerDay:     watts / 1000 * 0.3 * 24,
			CostPerMonth:   watts / 1000 * 0.3 * 24 * 30,
			CostPerYear:    watts / 1000 * 0.3 * 24 * 365,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll()

		var err error
		samples, err = store.NewDBSampleStore(db, testLogger)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("InsertBatch and LatestPerDevice", func() {
		It("returns the most recent sample per device", func() {
			now := time.Now().UTC().Truncate(time.Second)

			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", now.Add(-2*time.Minute), 500),
				newSample(1, "dev-a", now.Add(-time.Minute), 900),
				newSample(1, "dev-b", now.Add(-time.Minute), 150),
				newSample(2, "dev-c", now, 2000),
			})).To(Succeed())

			latest, err := samples.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(2))

			byDevice := map[string]float64{}
			for _, sample := range latest {
				byDevice[sample.DeviceID] = sample.PowerWatts
			}
			Expect(byDevice["dev-a"]).To(Equal(900.0))
			Expect(byDevice["dev-b"]).To(Equal(150.0))
		})

		It("breaks timestamp ties by insertion order", func() {
			ts := time.Now().UTC().Truncate(time.Second)

			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", ts, 100),
			})).To(Succeed())
			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", ts, 200),
			})).To(Succeed())

			latest, err := samples.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(1))
			Expect(latest[0].PowerWatts).To(Equal(200.0))
		})
	})

	Describe("RangeByDevice", func() {
		It("returns samples ascending since the cutoff", func() {
			now := time.Now().UTC().Truncate(time.Second)

			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", now.Add(-3*time.Hour), 100),
				newSample(1, "dev-a", now.Add(-time.Hour), 200),
				newSample(1, "dev-a", now, 300),
			})).To(Succeed())

			readings, err := samples.RangeByDevice(ctx, 1, "dev-a", now.Add(-90*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(2))
			Expect(readings[0].PowerWatts).To(Equal(200.0))
			Expect(readings[1].PowerWatts).To(Equal(300.0))
		})
	})

	Describe("AggregateDaily and UsageSince", func() {
		It("buckets usage by day", func() {
			base := time.Date(2026, 5, 18, 10, 0, 0, 0, time.UTC)

			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", base, 1000),
				newSample(1, "dev-a", base.Add(time.Hour), 2000),
				newSample(1, "dev-a", base.AddDate(0, 0, 1), 600),
			})).To(Succeed())

			rows, err := samples.AggregateDaily(ctx, 1, base.AddDate(0, 0, -1))
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].SampleCount).To(Equal(int64(2)))
			Expect(rows[0].TotalUsageKWh).To(BeNumerically("~", 3000.0/1000/3600, 1e-9))
			Expect(rows[1].SampleCount).To(Equal(int64(1)))

			totals, err := samples.UsageSince(ctx, 1, base.AddDate(0, 0, -1))
			Expect(err).NotTo(HaveOccurred())
			Expect(totals.SampleCount).To(Equal(int64(3)))
			Expect(totals.TotalUsageKWh).To(BeNumerically("~", 3600.0/1000/3600, 1e-9))
		})
	})

	Describe("EvictOlderThan", func() {
		It("removes only samples past the retention window", func() {
			now := time.Now().UTC()

			Expect(samples.InsertBatch(ctx, []store.TelemetrySample{
				newSample(1, "dev-a", now.Add(-48*time.Hour), 100),
				newSample(1, "dev-a", now.Add(-36*time.Hour), 200),
				newSample(1, "dev-a", now.Add(-time.Hour), 300),
			})).To(Succeed())

			removed, err := samples.EvictOlderThan(ctx, 24*time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(2)))

			latest, err := samples.LatestPerDevice(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(HaveLen(1))
			Expect(latest[0].PowerWatts).To(Equal(300.0))
		})

		It("rejects a non-positive retention window", func() {
			_, err := samples.EvictOlderThan(ctx, 0)
			Expect(err).To(MatchError(store.ErrInvalidRetention))
		})
	})
})
