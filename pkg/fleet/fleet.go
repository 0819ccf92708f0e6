// Package fleet generates realistic demo fleets: users with currency
// preferences, household appliances and controller hubs with attached
// devices. The seed command uses it to populate a fresh database.
package fleet

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"gridwatt.dev/gridwatt/internal/store"
)

// applianceClass describes one kind of household load and its rated-power
// range in watts.
type applianceClass struct {
	name     string
	minWatts float64
	maxWatts float64
}

var standaloneClasses = []applianceClass{
	{"Refrigerator", 100, 400},
	{"Washing Machine", 500, 2500},
	{"Dishwasher", 1200, 2400},
	{"Television", 60, 250},
	{"Air Conditioner", 1000, 3500},
	{"Electric Oven", 2000, 5000},
	{"Water Heater", 3000, 4500},
}

var controllerClasses = []applianceClass{
	{"EV Charger", 3600, 11000},
	{"Heat Pump", 800, 4000},
	{"Pool Pump", 750, 1500},
	{"Floor Heating", 500, 2000},
}

// currencies the demo fleet draws preferences from. The conversion factor is
// relative to the base rate currency.
var currencies = []store.CurrencyPreference{
	{Code: "EUR", Symbol: "€", ConversionFactor: 1.0},
	{Code: "USD", Symbol: "$", ConversionFactor: 1.09},
	{Code: "GBP", Symbol: "£", ConversionFactor: 0.85},
	{Code: "SEK", Symbol: "kr", ConversionFactor: 11.3},
}

// fakeUser feeds gofakeit.Struct.
type fakeUser struct {
	Name  string `fake:"{name}"`
	Email string `fake:"{email}"`
}

// fakeLocation feeds gofakeit.Struct.
type fakeLocation struct {
	Location string `fake:"{city}, {state}"`
}

// Fleet is one generated demo population.
type Fleet struct {
	Users       []store.User
	Preferences []store.CurrencyPreference
	Devices     []store.Device
	Controllers []store.Controller
}

// Options controls fleet generation.
type Options struct {
	// Users is how many accounts to generate
	Users int
	// DevicesPerUser is the number of standalone devices per account
	DevicesPerUser int
	// ControllersPerUser is the number of controller hubs per account
	ControllersPerUser int
	// DevicesPerController is the number of attached devices per hub
	DevicesPerController int
}

// DefaultOptions is a small household fleet.
func DefaultOptions() Options {
	return Options{
		Users:                3,
		DevicesPerUser:       4,
		ControllersPerUser:   1,
		DevicesPerController: 2,
	}
}

// Generate builds a random fleet. User and device ids are assigned
// sequentially starting at 1 so the result can be inserted as-is.
func Generate(opts Options) (*Fleet, error) {
	if opts.Users <= 0 {
		return nil, fmt.Errorf("fleet: user count must be positive, got %d", opts.Users)
	}
	if opts.DevicesPerUser < 0 || opts.ControllersPerUser < 0 || opts.DevicesPerController < 0 {
		return nil, fmt.Errorf("fleet: counts cannot be negative")
	}

	fleet := &Fleet{}
	now := time.Now().UTC()

	for i := 0; i < opts.Users; i++ {
		userID := uint(i + 1)

		var fu fakeUser
		if err := gofakeit.Struct(&fu); err != nil {
			return nil, fmt.Errorf("fleet: failed to generate user: %w", err)
		}

		fleet.Users = append(fleet.Users, store.User{
			ID:     userID,
			Name:   fu.Name,
			Email:  fu.Email,
			Active: true,
		})

		currency := currencies[rand.Intn(len(currencies))] // #nosec G404
		currency.UserID = userID
		// Household electricity rates roughly 0.10 to 0.40 per kWh.
		currency.Rate = 0.10 + rand.Float64()*0.30 // #nosec G404
		fleet.Preferences = append(fleet.Preferences, currency)

		for d := 0; d < opts.DevicesPerUser; d++ {
			fleet.Devices = append(fleet.Devices, newDevice(userID, nil, standaloneClasses, now))
		}

		for c := 0; c < opts.ControllersPerUser; c++ {
			controllerID := gofakeit.UUID()

			var loc fakeLocation
			if err := gofakeit.Struct(&loc); err != nil {
				return nil, fmt.Errorf("fleet: failed to generate location: %w", err)
			}

			controller := store.Controller{
				ControllerID: controllerID,
				Name:         fmt.Sprintf("%s Hub", gofakeit.LastName()),
				Location:     loc.Location,
				Status:       store.StatusOnline,
				UserID:       userID,
			}

			for d := 0; d < opts.DevicesPerController; d++ {
				device := newDevice(userID, &controllerID, controllerClasses, now)
				controller.TotalRatedPower += device.RatedWatts
				fleet.Devices = append(fleet.Devices, device)
			}

			fleet.Controllers = append(fleet.Controllers, controller)
		}
	}

	return fleet, nil
}

// newDevice draws one device from the given appliance classes.
func newDevice(userID uint, controllerID *string, classes []applianceClass, now time.Time) store.Device {
	class := classes[rand.Intn(len(classes))] // #nosec G404

	var loc fakeLocation
	if err := gofakeit.Struct(&loc); err != nil {
		loc.Location = "Unknown"
	}

	return store.Device{
		DeviceID:     gofakeit.UUID(),
		Name:         class.name,
		Location:     loc.Location,
		Status:       store.StatusOnline,
		ControllerID: controllerID,
		Connected:    controllerID != nil,
		LastSeen:     now,
		RatedWatts:   class.minWatts + rand.Float64()*(class.maxWatts-class.minWatts), // #nosec G404
		UserID:       userID,
	}
}
