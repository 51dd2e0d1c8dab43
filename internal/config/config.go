package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"farmScope/internal/near"
)

// Cache backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Mirror sinks.
const (
	MirrorMongo = "mongo"
	MirrorJSONL = "jsonl"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	ExchangeContract string
	FarmContract     string

	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	PGDSN         string
	CachePrefix   string

	Mirror        []string
	MongoURI      string
	MongoDatabase string
	MirrorDir     string

	Concurrency  int
	RPS          float64
	CallTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PoolPageSize int
	SeedPageSize int

	LeaseTTL        time.Duration
	ReportFile      string
	Listen          string
	RefreshInterval time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FARMSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://rpc.testnet.near.org")
	v.SetDefault("exchange-contract", "ref-finance-101.testnet")
	v.SetDefault("farm-contract", "v2.ref-farming.testnet")
	v.SetDefault("cache-backend", BackendRedis)
	v.SetDefault("redis-addr", "127.0.0.1:6379")
	v.SetDefault("cache-prefix", "farmscope")
	v.SetDefault("mongo-database", "ref_finance")
	v.SetDefault("mirror-dir", "./data/mirror")
	v.SetDefault("concurrency", 8)
	v.SetDefault("rps", 20.0)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("pool-page-size", 200)
	v.SetDefault("seed-page-size", 100)
	v.SetDefault("lease-ttl", 5*time.Minute)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		ExchangeContract: v.GetString("exchange-contract"),
		FarmContract:     v.GetString("farm-contract"),
		CacheBackend:     strings.ToLower(v.GetString("cache-backend")),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisTLS:         v.GetBool("redis-tls"),
		PGDSN:            v.GetString("pg-dsn"),
		CachePrefix:      v.GetString("cache-prefix"),
		Mirror:           getStringSlice(v, "mirror"),
		MongoURI:         v.GetString("mongo-uri"),
		MongoDatabase:    v.GetString("mongo-database"),
		MirrorDir:        v.GetString("mirror-dir"),
		Concurrency:      v.GetInt("concurrency"),
		RPS:              v.GetFloat64("rps"),
		CallTimeout:      v.GetDuration("call-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		PoolPageSize:     v.GetInt("pool-page-size"),
		SeedPageSize:     v.GetInt("seed-page-size"),
		LeaseTTL:         v.GetDuration("lease-ttl"),
		ReportFile:       v.GetString("report-file"),
		Listen:           v.GetString("listen"),
		RefreshInterval:  v.GetDuration("refresh-interval"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the values the refresh pipeline depends on.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if err := near.ValidateAccountID(c.ExchangeContract); err != nil {
		return fmt.Errorf("exchange contract: %w", err)
	}
	if err := near.ValidateAccountID(c.FarmContract); err != nil {
		return fmt.Errorf("farm contract: %w", err)
	}

	switch c.CacheBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	for _, sink := range c.Mirror {
		switch sink {
		case MirrorMongo:
			if c.MongoURI == "" {
				return fmt.Errorf("mongo uri is required for the mongo mirror")
			}
		case MirrorJSONL:
			if c.MirrorDir == "" {
				return fmt.Errorf("mirror dir is required for the jsonl mirror")
			}
		case "none":
		default:
			return fmt.Errorf("unknown mirror %q", sink)
		}
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
