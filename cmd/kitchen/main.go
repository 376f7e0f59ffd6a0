package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mchmarny/kitchen/pkg/config"
	"github.com/mchmarny/kitchen/pkg/console"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file (overrides KITCHEN_CONFIG)")
	port       = flag.Int("port", 0, "Port to run the console on (overrides PORT)")
	apiURL     = flag.String("api", "", "Menu API collection URL (overrides MENU_API_URL)")
	version    = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println(console.Version())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags win over every other source.
	if *port != 0 {
		cfg.Port = *port
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := console.Run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		cancel()
		os.Exit(1)
	}
}
