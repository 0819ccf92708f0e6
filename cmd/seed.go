package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gridwatt.dev/gridwatt/internal/store"
	"gridwatt.dev/gridwatt/pkg/fleet"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with a demo fleet",
	Long: `Populate the database with a generated demo fleet:
users with currency preferences, standalone household devices and
controller hubs with attached devices.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	// Seed-specific flags
	seedCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	seedCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	seedCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	seedCmd.Flags().String("db-password", "", "PostgreSQL password")
	seedCmd.Flags().String("db-name", "gridwatt", "PostgreSQL database name")
	seedCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	seedCmd.Flags().Int("users", 3, "number of demo users")
	seedCmd.Flags().Int("devices-per-user", 4, "standalone devices per user")
	seedCmd.Flags().Int("controllers-per-user", 1, "controller hubs per user")
	seedCmd.Flags().Int("devices-per-controller", 2, "attached devices per hub")

	// Bind flags to viper
	_ = viper.BindPFlag("seed.db.host", seedCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("seed.db.port", seedCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("seed.db.user", seedCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("seed.db.password", seedCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("seed.db.name", seedCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("seed.db.sslmode", seedCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("seed.users", seedCmd.Flags().Lookup("users"))
	_ = viper.BindPFlag("seed.devices_per_user", seedCmd.Flags().Lookup("devices-per-user"))
	_ = viper.BindPFlag("seed.controllers_per_user", seedCmd.Flags().Lookup("controllers-per-user"))
	_ = viper.BindPFlag("seed.devices_per_controller", seedCmd.Flags().Lookup("devices-per-controller"))
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("seeding demo fleet")

	generated, err := fleet.Generate(fleet.Options{
		Users:                viper.GetInt("seed.users"),
		DevicesPerUser:       viper.GetInt("seed.devices_per_user"),
		ControllersPerUser:   viper.GetInt("seed.controllers_per_user"),
		DevicesPerController: viper.GetInt("seed.devices_per_controller"),
	})
	if err != nil {
		logger.Error("failed to generate fleet", "error", err)
		return err
	}

	db, err := store.NewDB(&store.DBConfig{
		Host:     viper.GetString("seed.db.host"),
		Port:     viper.GetInt("seed.db.port"),
		User:     viper.GetString("seed.db.user"),
		Password: viper.GetString("seed.db.password"),
		DBName:   viper.GetString("seed.db.name"),
		SSLMode:  viper.GetString("seed.db.sslmode"),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer func() {
		if err := store.CloseDB(db, logger); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := db.Create(&generated.Users).Error; err != nil {
		return fmt.Errorf("failed to insert users: %w", err)
	}
	if err := db.Create(&generated.Preferences).Error; err != nil {
		return fmt.Errorf("failed to insert currency preferences: %w", err)
	}
	if len(generated.Controllers) > 0 {
		if err := db.Create(&generated.Controllers).Error; err != nil {
			return fmt.Errorf("failed to insert controllers: %w", err)
		}
	}
	if len(generated.Devices) > 0 {
		if err := db.Create(&generated.Devices).Error; err != nil {
			return fmt.Errorf("failed to insert devices: %w", err)
		}
	}

	logger.Info("demo fleet seeded",
		"users", len(generated.Users),
		"devices", len(generated.Devices),
		"controllers", len(generated.Controllers),
	)
	return nil
}
