package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/internal/aggregate"
	"gridwatt.dev/gridwatt/internal/store"
)

var _ = Describe("Server", func() {
	var (
		logger  *slog.Logger
		fleet   *store.MemoryFleet
		samples *store.MemorySampleStore
		mux     *http.ServeMux
		now     time.Time
	)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		fleet = store.NewMemoryFleet()
		samples = store.NewMemorySampleStore()
		now = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

		fleet.AddUser(
			store.User{ID: 1, Email: "amelia@example.com", Name: "Amelia", Active: true},
			store.CurrencyPreference{Code: "EUR", Symbol: "€", Rate: 0.3, ConversionFactor: 1.0},
		)
		fleet.AddDevice(store.Device{DeviceID: "dev-a", Name: "Washer", UserID: 1, Status: store.StatusOnline, RatedWatts: 2000})

		Expect(samples.InsertBatch(context.Background(), []store.TelemetrySample{{
			UserID:        1,
			DeviceID:      "dev-a",
			Timestamp:     now.Add(-time.Minute),
			PowerWatts:    1500,
			CostPerSecond: 0.000125,
			CostPerHour:   0.45,
			CostPerDay:    10.8,
		}})).To(Succeed())

		agg, err := aggregate.New(fleet, samples, logger)
		Expect(err).NotTo(HaveOccurred())
		agg.SetNowFunc(func() time.Time { return now })

		server, err := NewServer(&ServerConfig{
			Logger:   logger,
			HTTPPort: 8080,
			Stats:    agg,
			Readings: samples,
		})
		Expect(err).NotTo(HaveOccurred())

		mux = server.setupRoutes()
	})

	Describe("NewServer", func() {
		It("validates its configuration", func() {
			_, err := NewServer(nil)
			Expect(err).To(HaveOccurred())

			_, err = NewServer(&ServerConfig{Logger: logger, HTTPPort: 0})
			Expect(err).To(HaveOccurred())

			_, err = NewServer(&ServerConfig{Logger: logger, HTTPPort: 8080})
			Expect(err).To(MatchError("stats cannot be nil"))
		})
	})

	Describe("GET /health", func() {
		It("reports ok", func() {
			rec := get("/health")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"status":"ok"`))
		})
	})

	Describe("GET /api/users/{id}/snapshot", func() {
		It("returns the fleet snapshot", func() {
			rec := get("/api/users/1/snapshot")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snapshot aggregate.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snapshot)).To(Succeed())
			Expect(snapshot.Devices).To(HaveLen(1))
			Expect(snapshot.TotalPower).To(Equal(1500.0))
			Expect(snapshot.CurrencyCode).To(Equal("EUR"))
		})

		It("rejects a non-numeric user id", func() {
			rec := get("/api/users/abc/snapshot")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/users/{id}/stats/{period}", func() {
		It("returns the day rollup", func() {
			rec := get("/api/users/1/stats/day")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var stats aggregate.PeriodStats
			Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
			Expect(stats.Period).To(Equal(aggregate.PeriodDay))
			Expect(stats.SampleCount).To(Equal(int64(1)))
		})

		It("rejects an unknown period", func() {
			rec := get("/api/users/1/stats/fortnight")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("invalid period"))
		})
	})

	Describe("GET /api/users/{id}/chart", func() {
		It("returns per-day points", func() {
			rec := get("/api/users/1/chart?days=3")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var points []aggregate.ChartPoint
			Expect(json.Unmarshal(rec.Body.Bytes(), &points)).To(Succeed())
			Expect(points).To(HaveLen(1))
			Expect(points[0].SampleCount).To(Equal(int64(1)))
		})

		It("rejects a non-positive day count", func() {
			rec := get("/api/users/1/chart?days=0")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/users/{id}/devices/{deviceID}/readings", func() {
		It("returns the device's samples since the given time", func() {
			since := now.Add(-time.Hour).Format(time.RFC3339)
			rec := get("/api/users/1/devices/dev-a/readings?since=" + since)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var readings []store.TelemetrySample
			Expect(json.Unmarshal(rec.Body.Bytes(), &readings)).To(Succeed())
			Expect(readings).To(HaveLen(1))
			Expect(readings[0].PowerWatts).To(Equal(1500.0))
		})

		It("rejects a malformed since parameter", func() {
			rec := get("/api/users/1/devices/dev-a/readings?since=yesterday")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/controllers/{id}/snapshot", func() {
		It("returns 404 for an unknown controller", func() {
			rec := get("/api/controllers/ctl-missing/snapshot")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("returns the controller rollup", func() {
			controllerID := "ctl-garage"
			fleet.AddController(store.Controller{
				ControllerID: controllerID,
				Name:         "Garage Hub",
				UserID:       1,
				Status:       store.StatusOnline,
			})
			fleet.AddDevice(store.Device{
				DeviceID: "dev-charger", Name: "EV Charger", UserID: 1,
				Status: store.StatusOnline, ControllerID: &controllerID, Connected: true, RatedWatts: 7000,
			})

			rec := get("/api/controllers/ctl-garage/snapshot")
			Expect(rec.Code).To(Equal(http.StatusOK))

			var snapshot aggregate.ControllerSnapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snapshot)).To(Succeed())
			Expect(snapshot.ControllerID).To(Equal(controllerID))
			Expect(snapshot.Devices).To(HaveLen(1))
		})
	})
})
