package energy_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gridwatt.dev/gridwatt/pkg/energy"
)

var _ = Describe("Cost derivation", func() {
	Describe("DeriveCosts", func() {
		Context("with invalid input", func() {
			It("should reject negative power", func() {
				_, err := energy.DeriveCosts(-1, 0.25, 1)
				Expect(err).To(MatchError(energy.ErrInvalidInput))
			})

			It("should reject a non-positive electricity rate", func() {
				_, err := energy.DeriveCosts(1000, 0, 1)
				Expect(err).To(MatchError(energy.ErrInvalidInput))

				_, err = energy.DeriveCosts(1000, -0.5, 1)
				Expect(err).To(MatchError(energy.ErrInvalidInput))
			})

			It("should reject a non-positive conversion factor", func() {
				_, err := energy.DeriveCosts(1000, 0.25, 0)
				Expect(err).To(MatchError(energy.ErrInvalidInput))
			})
		})

		Context("with a 1kW draw at rate 1 and factor 1", func() {
			It("should cost exactly one currency unit per hour", func() {
				costs, err := energy.DeriveCosts(1000, 1, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(costs.PerHour).To(BeNumerically("~", 1.0, 1e-12))
				Expect(costs.PerSecond).To(BeNumerically("~", 1.0/3600, 1e-12))
				Expect(costs.PerDay).To(BeNumerically("~", 24.0, 1e-12))
				Expect(costs.PerMonth).To(BeNumerically("~", 720.0, 1e-9))
				Expect(costs.PerYear).To(BeNumerically("~", 8760.0, 1e-9))
			})
		})

		Context("horizon consistency", func() {
			It("should keep the five horizons exact multiples of each other", func() {
				for range 500 {
					watts := rand.Float64() * 5000
					rate := rand.Float64()*2 + 0.01
					factor := rand.Float64()*100 + 0.01

					costs, err := energy.DeriveCosts(watts, rate, factor)
					Expect(err).NotTo(HaveOccurred())

					Expect(costs.PerHour).To(BeNumerically("~", costs.PerSecond*3600, 1e-9))
					Expect(costs.PerDay).To(BeNumerically("~", costs.PerHour*24, 1e-9))
					Expect(costs.PerMonth).To(BeNumerically("~", costs.PerDay*30, 1e-9))
					Expect(costs.PerYear).To(BeNumerically("~", costs.PerDay*365, 1e-9))
				}
			})
		})

		Context("with zero power", func() {
			It("should produce all-zero costs", func() {
				costs, err := energy.DeriveCosts(0, 0.30, 1.1)
				Expect(err).NotTo(HaveOccurred())
				Expect(costs).To(Equal(energy.Costs{}))
			})
		})
	})
})
