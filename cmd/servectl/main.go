// servectl runs an echo RPC server, mainly for smoke-testing clients
// and metrics wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/wirerpc/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config")
	host := flag.String("host", "", "listen host (overrides config)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	secret := flag.String("secret", "", "shared auth secret (overrides config)")
	metrics := flag.Bool("metrics", false, "serve prometheus metrics")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "servectl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *secret != "" {
		cfg.AuthSecret = *secret
	}
	if *metrics {
		cfg.Metrics = true
	}
	if *debug {
		cfg.Debug = true
	}

	srv, err := server.New(cfg, echo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "servectl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "servectl: %v\n", err)
		os.Exit(1)
	}
}

func echo(_ context.Context, payload any) (any, error) {
	return map[string]any{"echo": payload}, nil
}
