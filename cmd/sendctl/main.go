// sendctl issues one RPC call and prints the decoded response as JSON.
//
// The request payload is given as a JSON literal argument:
//
//	sendctl -host 127.0.0.1 -port 9090 '{"foo": "bar"}'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/wirerpc/internal/client"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config")
	host := flag.String("host", "", "server host (overrides config)")
	port := flag.Int("port", 0, "server port (overrides config)")
	secret := flag.String("secret", "", "shared auth secret (overrides config)")
	timeout := flag.Duration("timeout", 0, "response timeout, 0 waits forever")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg := client.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			fail(err)
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
	if *timeout != 0 {
		cfg.Timeout = *timeout
	}
	if *debug {
		cfg.Debug = true
	}

	if flag.NArg() != 1 {
		fail(fmt.Errorf("expected exactly one JSON payload argument"))
	}
	var payload any
	if err := json.Unmarshal([]byte(flag.Arg(0)), &payload); err != nil {
		fail(fmt.Errorf("parse payload: %w", err))
	}

	c, err := client.New(cfg)
	if err != nil {
		fail(err)
	}
	result, err := c.Send(context.Background(), payload)
	if err != nil {
		fail(err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fail(fmt.Errorf("render response: %w", err))
	}
	fmt.Println(string(out))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "sendctl: %v\n", err)
	os.Exit(1)
}
