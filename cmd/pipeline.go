package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gridwatt.dev/gridwatt/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the energy monitoring pipeline",
	Long: `Run the energy monitoring pipeline that:
- Synthesizes telemetry for every active user's devices on a fixed interval
- Prices each sample with the user's currency preference
- Alerts owners of devices that have stopped reporting
- Evicts samples past the retention window
- Serves the dashboard JSON API and Prometheus metrics`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	// Pipeline-specific flags
	pipelineCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	pipelineCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	pipelineCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	pipelineCmd.Flags().String("db-password", "", "PostgreSQL password")
	pipelineCmd.Flags().String("db-name", "gridwatt", "PostgreSQL database name")
	pipelineCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	pipelineCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL for the alert queue (empty disables the channel)")
	pipelineCmd.Flags().String("alert-queue-name", "device-alerts", "RabbitMQ queue name for alerts")
	pipelineCmd.Flags().String("smtp-host", "", "SMTP relay host (empty disables the channel)")
	pipelineCmd.Flags().Int("smtp-port", 587, "SMTP relay port")
	pipelineCmd.Flags().String("smtp-username", "", "SMTP username")
	pipelineCmd.Flags().String("smtp-password", "", "SMTP password")
	pipelineCmd.Flags().String("smtp-from", "", "alert sender address")
	pipelineCmd.Flags().Duration("simulation-interval", 30*time.Second, "time between telemetry ticks")
	pipelineCmd.Flags().Duration("check-interval", 5*time.Minute, "time between inactivity checks")
	pipelineCmd.Flags().Duration("inactivity-threshold", 24*time.Hour, "how long a device may stay quiet before alerting")
	pipelineCmd.Flags().Duration("retention", 30*24*time.Hour, "how long samples are kept")
	pipelineCmd.Flags().Duration("sweep-interval", time.Hour, "time between retention sweeps")
	pipelineCmd.Flags().Int("http-port", 8080, "dashboard HTTP port")
	pipelineCmd.Flags().Bool("metrics", true, "enable Prometheus metrics")

	// Bind flags to viper
	_ = viper.BindPFlag("pipeline.db.host", pipelineCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("pipeline.db.port", pipelineCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("pipeline.db.user", pipelineCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("pipeline.db.password", pipelineCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("pipeline.db.name", pipelineCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("pipeline.db.sslmode", pipelineCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("pipeline.rabbitmq.url", pipelineCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("pipeline.rabbitmq.alert_queue_name", pipelineCmd.Flags().Lookup("alert-queue-name"))
	_ = viper.BindPFlag("pipeline.smtp.host", pipelineCmd.Flags().Lookup("smtp-host"))
	_ = viper.BindPFlag("pipeline.smtp.port", pipelineCmd.Flags().Lookup("smtp-port"))
	_ = viper.BindPFlag("pipeline.smtp.username", pipelineCmd.Flags().Lookup("smtp-username"))
	_ = viper.BindPFlag("pipeline.smtp.password", pipelineCmd.Flags().Lookup("smtp-password"))
	_ = viper.BindPFlag("pipeline.smtp.from", pipelineCmd.Flags().Lookup("smtp-from"))
	_ = viper.BindPFlag("pipeline.simulation.interval", pipelineCmd.Flags().Lookup("simulation-interval"))
	_ = viper.BindPFlag("pipeline.monitor.check_interval", pipelineCmd.Flags().Lookup("check-interval"))
	_ = viper.BindPFlag("pipeline.monitor.inactivity_threshold", pipelineCmd.Flags().Lookup("inactivity-threshold"))
	_ = viper.BindPFlag("pipeline.retention.window", pipelineCmd.Flags().Lookup("retention"))
	_ = viper.BindPFlag("pipeline.retention.sweep_interval", pipelineCmd.Flags().Lookup("sweep-interval"))
	_ = viper.BindPFlag("pipeline.http.port", pipelineCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("pipeline.metrics.enabled", pipelineCmd.Flags().Lookup("metrics"))
}

func runPipeline(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting pipeline service")

	// Create pipeline configuration from viper
	config := &pipeline.ServerConfig{
		Logger:              logger,
		DBHost:              viper.GetString("pipeline.db.host"),
		DBPort:              viper.GetInt("pipeline.db.port"),
		DBUser:              viper.GetString("pipeline.db.user"),
		DBPassword:          viper.GetString("pipeline.db.password"),
		DBName:              viper.GetString("pipeline.db.name"),
		DBSSLMode:           viper.GetString("pipeline.db.sslmode"),
		RabbitMQURL:         viper.GetString("pipeline.rabbitmq.url"),
		AlertQueueName:      viper.GetString("pipeline.rabbitmq.alert_queue_name"),
		SMTPHost:            viper.GetString("pipeline.smtp.host"),
		SMTPPort:            viper.GetInt("pipeline.smtp.port"),
		SMTPUsername:        viper.GetString("pipeline.smtp.username"),
		SMTPPassword:        viper.GetString("pipeline.smtp.password"),
		SMTPFrom:            viper.GetString("pipeline.smtp.from"),
		SimulationInterval:  viper.GetDuration("pipeline.simulation.interval"),
		CheckInterval:       viper.GetDuration("pipeline.monitor.check_interval"),
		InactivityThreshold: viper.GetDuration("pipeline.monitor.inactivity_threshold"),
		Retention:           viper.GetDuration("pipeline.retention.window"),
		SweepInterval:       viper.GetDuration("pipeline.retention.sweep_interval"),
		HTTPPort:            viper.GetInt("pipeline.http.port"),
		EnableMetrics:       viper.GetBool("pipeline.metrics.enabled"),
	}

	// Create and run server
	server, err := pipeline.NewServer(config)
	if err != nil {
		logger.Error("failed to create pipeline server", "error", err)
		return err
	}

	logger.Info("pipeline server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"simulation_interval", config.SimulationInterval,
		"check_interval", config.CheckInterval,
		"inactivity_threshold", config.InactivityThreshold,
		"retention", config.Retention,
		"http_port", config.HTTPPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("pipeline server error", "error", err)
		return err
	}

	logger.Info("pipeline server stopped")
	return nil
}
