// Package store provides the persistence layer for the energy-monitoring
// pipeline: GORM models, the PostgreSQL-backed sample store and fleet
// registry, an in-memory rendition of both for tests and local development,
// and the retention janitor.
package store

import (
	"time"
)

// Device status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User represents a dashboard account. Profile CRUD lives outside this
// pipeline; the simulation only needs identity, activity flag and the
// notification address.
type User struct {
	Email      string             `gorm:"uniqueIndex;not null"`
	Name       string             `gorm:"not null"`
	CreatedAt  time.Time          `gorm:"autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"autoUpdateTime"`
	Preference CurrencyPreference `gorm:"foreignKey:UserID"`
	Devices    []Device           `gorm:"foreignKey:UserID"`
	ID         uint               `gorm:"primaryKey"`
	Active     bool               `gorm:"index;not null;default:true"`
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}

// CurrencyPreference holds a user's currency and electricity pricing
// configuration. Rate and ConversionFactor are always positive; changing them
// never rewrites historical samples, whose cost figures are frozen at capture
// time.
type CurrencyPreference struct {
	Code             string    `gorm:"not null"`
	Symbol           string    `gorm:"not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
	Rate             float64   `gorm:"not null"`
	ConversionFactor float64   `gorm:"not null"`
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"uniqueIndex;not null"`
}

// TableName specifies the table name for the CurrencyPreference model.
func (CurrencyPreference) TableName() string {
	return "currency_preferences"
}

// Device represents a registered appliance. Status toggles and CRUD are
// external to the pipeline; the schedulers treat devices as read-only input.
// LastAlertedAt backs the inactivity-alert dedup: it is set when an alert is
// delivered and compared against LastSeen, so a device that reports again
// automatically re-arms.
type Device struct {
	DeviceID      string     `gorm:"uniqueIndex;not null"`
	Name          string     `gorm:"not null"`
	Location      string     `gorm:"not null"`
	Status        string     `gorm:"index;not null;default:online"`
	ControllerID  *string    `gorm:"index"`
	LastSeen      time.Time  `gorm:"index"`
	LastAlertedAt *time.Time
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
	RatedWatts    float64    `gorm:"not null"`
	ID            uint       `gorm:"primaryKey"`
	UserID        uint       `gorm:"index;not null"`
	Connected     bool       `gorm:"not null;default:true"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}

// Controller represents a hub aggregating several devices. TotalRatedPower is
// maintained by the registry as the sum of rated power of currently connected
// attached devices.
type Controller struct {
	ControllerID    string    `gorm:"uniqueIndex;not null"`
	Name            string    `gorm:"not null"`
	Location        string    `gorm:"not null"`
	Status          string    `gorm:"index;not null;default:online"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
	Devices         []Device  `gorm:"foreignKey:ControllerID;references:ControllerID"`
	TotalRatedPower float64   `gorm:"not null;default:0"`
	ID              uint      `gorm:"primaryKey"`
	UserID          uint      `gorm:"index;not null"`
}

// TableName specifies the table name for the Controller model.
func (Controller) TableName() string {
	return "controllers"
}

// TelemetrySample is one immutable synthesized telemetry fact. Samples are
// created only by the simulation schedulers, never updated, and evicted once
// older than the retention window. The auto-increment ID doubles as the
// insertion-order tie-break for latest-per-device reads.
type TelemetrySample struct {
	DeviceID       string    `gorm:"index:idx_samples_user_device,priority:2;not null"`
	ControllerID   *string
	CurrencyCode   string    `gorm:"not null"`
	CurrencySymbol string    `gorm:"not null"`
	Timestamp      time.Time `gorm:"index:idx_samples_user_time,priority:2;index;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	PowerWatts     float64   `gorm:"not null"`
	Voltage        float64   `gorm:"not null"`
	Current        float64   `gorm:"not null"`
	Frequency      float64   `gorm:"not null"`
	Rate           float64   `gorm:"not null"`
	CostPerSecond  float64   `gorm:"not null"`
	CostPerHour    float64   `gorm:"not null"`
	CostPerDay     float64   `gorm:"not null"`
	CostPerMonth   float64   `gorm:"not null"`
	CostPerYear    float64   `gorm:"not null"`
	ID             uint      `gorm:"primaryKey"`
	UserID         uint      `gorm:"index:idx_samples_user_device,priority:1;index:idx_samples_user_time,priority:1;not null"`
}

// TableName specifies the table name for the TelemetrySample model.
func (TelemetrySample) TableName() string {
	return "telemetry_samples"
}

// UsageKWh returns the energy this sample represents, treating it as one
// second of draw at its instantaneous power. Discrete-sampling approximation,
// not true integration.
func (s *TelemetrySample) UsageKWh() float64 {
	return s.PowerWatts / 1000 / 3600
}
