package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP        `envPrefix:"HTTP_"`
		Logger    Logger      `envPrefix:"LOGGER_"`
		Map       Map         `envPrefix:"MAP_"`
		Loader    Loader      `envPrefix:"LOADER_"`
		Source    Source      `envPrefix:"SOURCE_"`
		Memory    MemoryCache `envPrefix:"MEMORY_CACHE_"`
		Redis     Redis       `envPrefix:"REDIS_"`
		Telemetry Telemetry   `envPrefix:"TELEMETRY_"`
	}

	HTTP struct {
		Addr            string        `env:"ADDR" envDefault:":8080" validate:"required"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		// TileFormat is the encoding of images served from the tile cache.
		TileFormat  string `env:"TILE_FORMAT" envDefault:"png" validate:"oneof=png jpeg webp"`
		TileQuality int    `env:"TILE_QUALITY" envDefault:"85" validate:"min=1,max=100"`
	}

	Logger struct {
		Level       string `env:"LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`
		Development bool   `env:"DEVELOPMENT" envDefault:"false"`
	}

	Map struct {
		Projection string  `env:"PROJECTION" envDefault:"webmercator" validate:"oneof=webmercator swissgrid"`
		Lat        float64 `env:"LAT" envDefault:"47.3769" validate:"gte=-90,lte=90"`
		Lon        float64 `env:"LON" envDefault:"8.5417" validate:"gte=-180,lte=180"`
		Zoom       int     `env:"ZOOM" envDefault:"12" validate:"gtefield=MinZoom,ltefield=MaxZoom"`
		MinZoom    int     `env:"MIN_ZOOM" envDefault:"0" validate:"min=0"`
		MaxZoom    int     `env:"MAX_ZOOM" envDefault:"19" validate:"max=22,gtefield=MinZoom"`
		// Width and Height are bounded by mapview.MaxSide.
		Width      int     `env:"WIDTH" envDefault:"1024" validate:"gt=0,lte=16384"`
		Height     int     `env:"HEIGHT" envDefault:"768" validate:"gt=0,lte=16384"`
		Rotation   float64 `env:"ROTATION" envDefault:"0"`
		// ParentLevels of -1 keeps every coarser level down to zoom 0.
		ParentLevels    int           `env:"PARENT_LEVELS" envDefault:"-1" validate:"gte=-1"`
		RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5s"`
	}

	Loader struct {
		Workers      int           `env:"WORKERS" envDefault:"8" validate:"min=1,max=256"`
		FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s" validate:"gt=0"`
		RetryAfter   time.Duration `env:"RETRY_AFTER" envDefault:"10s" validate:"gt=0"`
	}

	Source struct {
		URL        string        `env:"URL" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png" validate:"required_without=Archive"`
		Subdomains []string      `env:"SUBDOMAINS" envSeparator:","`
		Archive    string        `env:"ARCHIVE"`
		UserAgent  string        `env:"USER_AGENT"`
		Referer    string        `env:"REFERER"`
		Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
	}

	MemoryCache struct {
		Enabled  bool          `env:"ENABLED" envDefault:"true"`
		MaxItems int64         `env:"MAX_ITEMS" envDefault:"2048" validate:"min=1"`
		TTL      time.Duration `env:"TTL" envDefault:"10m"`
	}

	Redis struct {
		Enabled  bool          `env:"ENABLED" envDefault:"false"`
		Addr     string        `env:"ADDR" envDefault:"localhost:6379" validate:"required_if=Enabled true"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0" validate:"min=0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
		Name     string        `env:"NAME" envDefault:"osm"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tileview"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
		Environment    string `env:"ENVIRONMENT" envDefault:"development"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317" validate:"required_if=Enabled true"`
	}
)

// New loads the optional .env files (default ".env") and then parses and
// validates the process environment.
func New(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return Parse(nil)
}

// Parse reads the configuration from environ, or from the process
// environment when environ is nil, and validates it.
func Parse(environ map[string]string) (*Config, error) {
	var (
		cfg Config
		err error
	)
	if environ == nil {
		cfg, err = env.ParseAs[Config]()
	} else {
		cfg, err = env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	}
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. It is run by Parse and should be
// re-run after flags have overridden fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
