package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/crime-risk-backend-go/internal/validation"
)

// Config is the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Data      DataConfig      `yaml:"data"`
	Models    ModelsConfig    `yaml:"models"`
	Features  FeaturesConfig  `yaml:"features"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Live      LiveConfig      `yaml:"live"`
	RiskIndex RiskIndexConfig `yaml:"risk_index"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port      string          `yaml:"port" validate:"required"`
	JWTSecret string          `yaml:"jwt_secret"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"min=0"`
	Burst int     `yaml:"burst" validate:"min=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // Empty disables persistence
}

type DataConfig struct {
	HistoricalCSV string `yaml:"historical_csv"`
}

type ModelsConfig struct {
	Dir            string  `yaml:"dir" validate:"required"`
	ClassifierKind string  `yaml:"classifier_kind" validate:"required"`
	Contamination  float64 `yaml:"contamination" validate:"gt=0,lt=0.5"`
	Seed           int64   `yaml:"seed"`
}

type FeaturesConfig struct {
	RadiusMeters float64 `yaml:"radius_m" validate:"gt=0"`
	HourBand     int     `yaml:"hour_band" validate:"min=0,max=12"`
	BucketDeg    float64 `yaml:"bucket_deg" validate:"gt=0"`
}

type ClusterConfig struct {
	SpatialEpsMeters float64       `yaml:"spatial_eps_m" validate:"gt=0"`
	TemporalEps      time.Duration `yaml:"temporal_eps" validate:"min=0"`
	MinPoints        int           `yaml:"min_points" validate:"min=1"`
	Index            string        `yaml:"index" validate:"oneof=naive grid"`
}

type LiveConfig struct {
	Capacity          int           `yaml:"capacity" validate:"min=1"`
	Retention         time.Duration `yaml:"retention" validate:"min=0"`
	RecomputeEvents   int           `yaml:"recompute_events" validate:"min=1"`
	RecomputeInterval time.Duration `yaml:"recompute_interval" validate:"gt=0"`
	PruneInterval     time.Duration `yaml:"prune_interval" validate:"gt=0"`
}

type RiskIndexConfig struct {
	CellLevel      int           `yaml:"cell_level" validate:"min=1,max=30"`
	HalfLife       time.Duration `yaml:"half_life" validate:"gt=0"`
	LiveWeight     float64       `yaml:"live_weight" validate:"gt=0"`
	NeighborWeight float64       `yaml:"neighbor_weight" validate:"min=0,max=1"`
}

type InputConfig struct {
	Redis    RedisConfig    `yaml:"redis"`
	Simulate SimulateConfig `yaml:"simulate"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr" validate:"required_if=Enabled true"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"min=0"`
	Key          string        `yaml:"key" validate:"required_if=Enabled true"`
	BlockTimeout time.Duration `yaml:"block_timeout" validate:"min=0"`
}

type SimulateConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	CenterLat float64       `yaml:"center_lat" validate:"min=-90,max=90"`
	CenterLon float64       `yaml:"center_lon" validate:"min=-180,max=180"`
	JitterDeg float64       `yaml:"jitter_deg" validate:"min=0,max=5"`
	Seed      int64         `yaml:"seed"`
}

type OutputConfig struct {
	ClustersJSONL string `yaml:"clusters_jsonl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json console"`
	Caller bool   `yaml:"caller"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      ":8080",
			RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		},
		Database: DatabaseConfig{Path: "./data/crime.db"},
		Models: ModelsConfig{
			Dir:            "./data/models",
			ClassifierKind: "logistic",
			Contamination:  0.05,
			Seed:           42,
		},
		Features: FeaturesConfig{RadiusMeters: 1000, HourBand: 2, BucketDeg: 0.01},
		Cluster: ClusterConfig{
			SpatialEpsMeters: 1000,
			TemporalEps:      720 * time.Hour,
			MinPoints:        5,
			Index:            "grid",
		},
		Live: LiveConfig{
			Capacity:          500,
			Retention:         24 * time.Hour,
			RecomputeEvents:   10,
			RecomputeInterval: time.Minute,
			PruneInterval:     30 * time.Second,
		},
		RiskIndex: RiskIndexConfig{
			CellLevel:      13,
			HalfLife:       30 * time.Minute,
			LiveWeight:     5,
			NeighborWeight: 0.5,
		},
		Input: InputConfig{
			Redis: RedisConfig{Key: "crime:live", BlockTimeout: 5 * time.Second},
			Simulate: SimulateConfig{
				Enabled:   true,
				Interval:  5 * time.Second,
				CenterLat: 28.7041,
				CenterLon: 77.1025,
				JitterDeg: 0.1,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides. An empty path yields the defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server.Port = port
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Server.JWTSecret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Input.Redis.Addr = addr
		c.Input.Redis.Enabled = true
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
