package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Emergency search and reservation tuning.
	EmergencyNumber   string  `mapstructure:"EMERGENCY_NUMBER"`
	SearchRadiusKm    float64 `mapstructure:"SEARCH_RADIUS_KM"`
	EmergencySpeedKmh float64 `mapstructure:"EMERGENCY_SPEED_KMH"`
	CacheTTLSeconds   int     `mapstructure:"CACHE_TTL_SECONDS"`
	SweepIntervalSecs int     `mapstructure:"SWEEP_INTERVAL_SECONDS"`

	// Payment gateway credentials.
	PaymentKeyID     string `mapstructure:"PAYMENT_KEY_ID"`
	PaymentKeySecret string `mapstructure:"PAYMENT_KEY_SECRET"`
	PaymentBaseURL   string `mapstructure:"PAYMENT_BASE_URL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EMERGENCY_NUMBER", "108")
	v.SetDefault("SEARCH_RADIUS_KM", 10)
	v.SetDefault("EMERGENCY_SPEED_KMH", 40)
	v.SetDefault("CACHE_TTL_SECONDS", 30)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("PAYMENT_BASE_URL", "https://api.razorpay.com/v1")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("EMERGENCY_NUMBER")
	v.BindEnv("SEARCH_RADIUS_KM")
	v.BindEnv("EMERGENCY_SPEED_KMH")
	v.BindEnv("CACHE_TTL_SECONDS")
	v.BindEnv("SWEEP_INTERVAL_SECONDS")
	v.BindEnv("PAYMENT_KEY_ID")
	v.BindEnv("PAYMENT_KEY_SECRET")
	v.BindEnv("PAYMENT_BASE_URL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a token are attributed to a fixed dev user.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SECRET must be set so that booking endpoints can attribute requests to
// a real user, and payment credentials must be present together or not at all.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q", c.Env)
	}
	if (c.PaymentKeyID == "") != (c.PaymentKeySecret == "") {
		return fmt.Errorf("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET must be set together")
	}
	if c.SearchRadiusKm <= 0 {
		return fmt.Errorf("SEARCH_RADIUS_KM must be positive, got %v", c.SearchRadiusKm)
	}
	if c.EmergencySpeedKmh <= 0 {
		return fmt.Errorf("EMERGENCY_SPEED_KMH must be positive, got %v", c.EmergencySpeedKmh)
	}
	return nil
}
