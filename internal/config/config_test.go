package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "ref-finance-101.testnet", cfg.ExchangeContract)
	assert.Equal(t, "v2.ref-farming.testnet", cfg.FarmContract)
	assert.Equal(t, BackendRedis, cfg.CacheBackend)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 200, cfg.PoolPageSize)
	assert.Equal(t, 100, cfg.SeedPageSize)
	assert.Nil(t, cfg.Mirror)
	require.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	cfgFile := filepath.Join(dir, "farmscope.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("cache-backend: postgres\npg-dsn: postgres://file\nconcurrency: 2\nmirror: [jsonl, mongo]\n"), 0o644))

	t.Setenv("FARMSCOPE_CONCURRENCY", "4")
	t.Setenv("FARMSCOPE_MONGO_URI", "mongodb://localhost:27017")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("pg-dsn", "", "")
	require.NoError(t, flags.Parse([]string{"--pg-dsn", "postgres://flag"}))

	cfg, err := Load(cfgFile, flags)
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.CacheBackend)
	assert.Equal(t, "postgres://flag", cfg.PGDSN, "flag beats file")
	assert.Equal(t, 4, cfg.Concurrency, "env beats file")
	assert.Equal(t, []string{"jsonl", "mongo"}, cfg.Mirror)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad exchange", mutate: func(c *Config) { c.ExchangeContract = "Not An Account" }},
		{name: "bad farm", mutate: func(c *Config) { c.FarmContract = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.CacheBackend = "etcd" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.CacheBackend = BackendPostgres }},
		{name: "mongo without uri", mutate: func(c *Config) { c.Mirror = []string{MirrorMongo} }},
		{name: "unknown mirror", mutate: func(c *Config) { c.Mirror = []string{"s3"} }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
