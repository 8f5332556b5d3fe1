package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslMode"`
}

// ConnectionString renders the lib/pq key=value form
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type DeadlineConfig struct {
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
}

type MonitoringConfig struct {
	CheckIntervalSeconds int   `mapstructure:"checkIntervalSeconds"`
	PulseIntervalSeconds int   `mapstructure:"pulseIntervalSeconds"`
	WarningStages        []int `mapstructure:"warningStages"`
}

type InventoryConfig struct {
	SeriesPriority     []string       `mapstructure:"seriesPriority"`
	LowStockThresholds map[string]int `mapstructure:"lowStockThresholds"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Deadline   DeadlineConfig   `mapstructure:"deadline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Inventory  InventoryConfig  `mapstructure:"inventory"`
}

// LoadConfig reads config.yaml from the given path and overlays environment
// variables. A missing file is fine; env vars and defaults carry the day.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.name", "DB_NAME")
	viper.BindEnv("database.sslMode", "DB_SSLMODE")
	viper.BindEnv("deadline.hour", "DEADLINE_HOUR")
	viper.BindEnv("deadline.minute", "DEADLINE_MINUTE")
	viper.BindEnv("monitoring.checkIntervalSeconds", "MONITORING_CHECK_INTERVAL_SECONDS")
	viper.BindEnv("monitoring.pulseIntervalSeconds", "MONITORING_PULSE_INTERVAL_SECONDS")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.name", "cashdesk")
	viper.SetDefault("database.sslMode", "disable")
	viper.SetDefault("deadline.hour", 15)
	viper.SetDefault("deadline.minute", 0)
	viper.SetDefault("monitoring.checkIntervalSeconds", 60)
	viper.SetDefault("monitoring.pulseIntervalSeconds", 10)
	viper.SetDefault("monitoring.warningStages", []int{30, 15, 5})

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return
}
