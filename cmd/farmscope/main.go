package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "farmscope",
		Short:        "Ref Finance farm and pool cache",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and exit",
		RunE:  runRefresh,
	}
	addCommonFlags(refreshCmd.Flags())
	refreshCmd.Flags().String("report-file", "", "write the refresh report to this JSON file")
	root.AddCommand(refreshCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cached collections over HTTP",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("refresh-interval", 0, "refresh in the background at this interval, 0 disables")
	serveCmd.Flags().String("report-file", "", "write each refresh report to this JSON file")
	root.AddCommand(serveCmd)

	evictCmd := &cobra.Command{
		Use:   "evict-token <token-id>...",
		Short: "Drop token metadata so the next refresh fetches it again",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEvictToken,
	}
	addCommonFlags(evictCmd.Flags())
	root.AddCommand(evictCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "https://rpc.testnet.near.org", "NEAR RPC URL")
	flags.String("exchange-contract", "ref-finance-101.testnet", "exchange contract account id")
	flags.String("farm-contract", "v2.ref-farming.testnet", "farming contract account id")
	flags.String("cache-backend", "redis", "cache backend (redis, postgres, memory)")
	flags.String("redis-addr", "127.0.0.1:6379", "redis address")
	flags.String("redis-password", "", "redis password")
	flags.Bool("redis-tls", false, "connect to redis over TLS")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("cache-prefix", "farmscope", "namespace prefix of cache keys")
	flags.StringSlice("mirror", nil, "mirror sinks (mongo, jsonl; comma-separated)")
	flags.String("mongo-uri", "", "MongoDB URI for the mongo mirror")
	flags.String("mongo-database", "ref_finance", "MongoDB database for the mongo mirror")
	flags.String("mirror-dir", "./data/mirror", "output directory for the jsonl mirror")
	flags.Int("concurrency", 8, "maximum concurrent view calls per fan-out")
	flags.Float64("rps", 20, "maximum view calls per second, 0 disables limiting")
	flags.Duration("call-timeout", 10*time.Second, "timeout of a single view call attempt")
	flags.Int("max-retries", 3, "maximum retry attempts on transport errors")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Int("pool-page-size", 200, "pools per get_pools page")
	flags.Int("seed-page-size", 100, "seeds requested from list_seeds")
	flags.Duration("lease-ttl", 5*time.Minute, "refresh lease TTL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
