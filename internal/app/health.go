package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/cargoscoop/internal/cache"
	"horse.fit/cargoscoop/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Connectivity check timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rt, code := openRuntime("health", envLoader)
	if rt == nil {
		return code
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := rt.pool.Ping(ctx); err != nil {
		rt.logger.Error().Err(err).Msg("database ping failed")
		fmt.Fprintf(os.Stderr, "Database unavailable: %v\n", err)
		return 1
	}
	fmt.Println("database: ok")

	if rt.cfg.RedisURL == "" {
		fmt.Println("cache: in-process")
		return 0
	}
	rc, err := cache.OpenRedis(ctx, rt.cfg.RedisURL, rt.cfg.RedisDB)
	if err != nil {
		rt.logger.Error().Err(err).Msg("redis ping failed")
		fmt.Fprintf(os.Stderr, "Cache unavailable: %v\n", err)
		return 1
	}
	defer rc.Close()
	fmt.Println("cache: ok")
	return 0
}
