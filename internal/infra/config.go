package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"market_engine/internal/domain"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name" default:"market_engine"`
		Version string `yaml:"version" default:"dev"`
	} `yaml:"app"`

	Gateway GatewayConfig `yaml:"gateway"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Icons   IconsConfig   `yaml:"icons"`
	Server  ServerConfig  `yaml:"server"`

	Logging struct {
		Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Dir   string `yaml:"dir" default:"logs"`
	} `yaml:"logging"`
}

// GatewayConfig selects the upstreams. With every URL empty the engine runs
// on the simulated source only.
type GatewayConfig struct {
	MarketURL    string        `yaml:"market_url" validate:"omitempty,url"`
	FearGreedURL string        `yaml:"fear_greed_url" validate:"omitempty,url"`
	ExchangeURL  string        `yaml:"exchange_url" validate:"omitempty,url"`
	ContentURL   string        `yaml:"content_url" validate:"omitempty,url"`
	AccountURL   string        `yaml:"account_url" validate:"omitempty,url"`
	VSCurrency   string        `yaml:"vs_currency" default:"usd"`
	Timeout      time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	Concurrency  int           `yaml:"concurrency" default:"8" validate:"min=1,max=64"`
	SimSeed      uint64        `yaml:"sim_seed" default:"42"`
}

// EngineConfig holds the scheduler cadences and probabilities.
type EngineConfig struct {
	DefaultPair       string        `yaml:"default_pair" default:"BTC-USDT" validate:"required"`
	InstrumentsTop    int           `yaml:"instruments_top" default:"50" validate:"min=1,max=250"`
	FastInterval      time.Duration `yaml:"fast_interval" default:"30s" validate:"gt=0"`
	MediumInterval    time.Duration `yaml:"medium_interval" default:"60s" validate:"gt=0"`
	RemoteTickProb    float64       `yaml:"remote_tick_prob" default:"0.1" validate:"gte=0,lte=1"`
	GlobalsSampleProb float64       `yaml:"globals_sample_prob" default:"0.05" validate:"gte=0,lte=1"`
	TapeCapacity      int           `yaml:"tape_capacity" default:"20" validate:"min=1"`
	BookDepth         int           `yaml:"book_depth" default:"20" validate:"min=1"`
	NewsLimit         int           `yaml:"news_limit" default:"10" validate:"min=1"`
}

// CacheConfig configures the payload cache for news and education.
type CacheConfig struct {
	Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory redis none"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
}

type StorageConfig struct {
	Path string `yaml:"path"` // empty = user config dir
}

type IconsConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	Dir         string `yaml:"dir"` // empty = user config dir
	Concurrency int    `yaml:"concurrency" default:"4" validate:"min=1"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" default:":8080"`
	StreamInterval time.Duration `yaml:"stream_interval" default:"2s" validate:"gt=0"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" default:"5s"`
}

var validate = validator.New()

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// struct tags are static; a failure here is a programming error
		panic(err)
	}
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	// 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigError{Field: fe.Namespace(), Err: fmt.Errorf("failed %q rule", fe.Tag())}
		}
		return &domain.ConfigError{Field: "config", Err: err}
	}

	if c.Engine.MediumInterval < c.Engine.FastInterval {
		return &domain.ConfigError{Field: "engine.medium_interval", Err: errors.New("must not be shorter than fast_interval")}
	}
	if c.Cache.Backend == "redis" && c.Cache.Addr == "" {
		return &domain.ConfigError{Field: "cache.addr", Err: errors.New("required for redis backend")}
	}
	if !strings.Contains(c.Engine.DefaultPair, "-") {
		return &domain.ConfigError{Field: "engine.default_pair", Err: domain.ErrInvalidPair}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if u := os.Getenv("MARKET_GATEWAY_URL"); u != "" {
		cfg.Gateway.MarketURL = u
	}
	if addr := os.Getenv("MARKET_REDIS_ADDR"); addr != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Addr = addr
	}
	if pass := os.Getenv("MARKET_REDIS_PASSWORD"); pass != "" {
		cfg.Cache.Password = pass
	}
	if lvl := os.Getenv("MARKET_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = strings.ToLower(lvl)
	}
}
