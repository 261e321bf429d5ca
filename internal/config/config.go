package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"APP_PORT" envDefault:"8084"`
	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN    string `env:"DB_DSN"`

	JWTSecret string `env:"JWT_SECRET"`

	// Live channel (websocket) settings.
	LivePath             string   `env:"LIVE_PATH" envDefault:"/api/socket/io"`
	WSInsecureSkipVerify bool     `env:"WS_INSECURE_SKIP_VERIFY"`
	WSOriginPatterns     []string `env:"WS_ORIGIN_PATTERNS" envSeparator:","`

	Log LogConfig `envPrefix:"LOG_"`

	Cloudinary     CloudinaryConfig `envPrefix:"CLOUDINARY_"`
	UploadDir      string           `env:"UPLOAD_DIR" envDefault:"./uploads"`
	PublicBaseURL  string           `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8084"`
	MaxUploadBytes int64            `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	IngestRate  float64 `env:"INGEST_RATE" envDefault:"5"`
	IngestBurst int     `env:"INGEST_BURST" envDefault:"10"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type CloudinaryConfig struct {
	CloudName string `env:"CLOUD_NAME"`
	APIKey    string `env:"API_KEY"`
	APISecret string `env:"API_SECRET"`
	Folder    string `env:"FOLDER" envDefault:"connectly"`
}

// Configured reports whether every credential needed for uploads is present.
func (c CloudinaryConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported (mysql, sqlite)", c.DBDriver))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
