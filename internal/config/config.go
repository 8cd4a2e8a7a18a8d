// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the resolved service settings.
type Config struct {
	AppPort string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	// RedisURL empty keeps revoked tokens in memory.
	RedisURL string
	// RabbitMQURL empty disables event publishing.
	RabbitMQURL string

	LoanPeriodDays      int
	MaxActiveBorrowings int
	BorrowMaxAttempts   int

	BootstrapLibrarianEmail    string
	BootstrapLibrarianPassword string

	AvailabilityStreamInterval time.Duration
}

var envFiles = []string{".env", "../.env"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "library.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("LOAN_PERIOD_DAYS", 14)
	v.SetDefault("MAX_ACTIVE_BORROWINGS", 3)
	v.SetDefault("BORROW_MAX_ATTEMPTS", 5)
	v.SetDefault("BOOTSTRAP_LIBRARIAN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_LIBRARIAN_PASSWORD", "")
	v.SetDefault("AVAILABILITY_STREAM_INTERVAL", "1s")
}

// Load reads an optional .env file, then the process environment.
// Values already set in the environment win over the .env file.
func Load() (*Config, error) {
	for _, p := range envFiles {
		if err := godotenv.Load(p); err == nil {
			log.Printf("Loaded environment from %s", p)
			break
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:                    v.GetString("APP_PORT"),
		DatabaseDriver:             v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:                v.GetString("DATABASE_DSN"),
		JWTSecret:                  v.GetString("JWT_SECRET"),
		JWTTTL:                     v.GetDuration("JWT_TTL"),
		RedisURL:                   v.GetString("REDIS_URL"),
		RabbitMQURL:                v.GetString("RABBITMQ_URL"),
		LoanPeriodDays:             v.GetInt("LOAN_PERIOD_DAYS"),
		MaxActiveBorrowings:        v.GetInt("MAX_ACTIVE_BORROWINGS"),
		BorrowMaxAttempts:          v.GetInt("BORROW_MAX_ATTEMPTS"),
		BootstrapLibrarianEmail:    v.GetString("BOOTSTRAP_LIBRARIAN_EMAIL"),
		BootstrapLibrarianPassword: v.GetString("BOOTSTRAP_LIBRARIAN_PASSWORD"),
		AvailabilityStreamInterval: v.GetDuration("AVAILABILITY_STREAM_INTERVAL"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.LoanPeriodDays <= 0 {
		return fmt.Errorf("LOAN_PERIOD_DAYS must be positive")
	}
	if c.MaxActiveBorrowings <= 0 {
		return fmt.Errorf("MAX_ACTIVE_BORROWINGS must be positive")
	}
	if c.BorrowMaxAttempts <= 0 {
		return fmt.Errorf("BORROW_MAX_ATTEMPTS must be positive")
	}
	if c.AvailabilityStreamInterval <= 0 {
		return fmt.Errorf("AVAILABILITY_STREAM_INTERVAL must be positive")
	}
	if (c.BootstrapLibrarianEmail == "") != (c.BootstrapLibrarianPassword == "") {
		return fmt.Errorf("BOOTSTRAP_LIBRARIAN_EMAIL and BOOTSTRAP_LIBRARIAN_PASSWORD must be set together")
	}
	return nil
}
