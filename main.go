// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// CLIFlags are the gateway's recognised command-line flags. Kept
// deliberately small: every other runtime option is environment-variable or
// config-file driven.
type CLIFlags struct {
	Port       int
	Host       string
	ConfigPath string
}

func ParseCLIFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("ai-inference-gateway", flag.ContinueOnError)

	var flags CLIFlags
	fs.IntVar(&flags.Port, "port", 0, "Port to listen on")
	fs.StringVar(&flags.Host, "host", "", "Host/address to bind")
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to TOML config file")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}
	return flags, nil
}

// MergeConfig applies explicit CLI flags over the loaded config, taking
// priority over both the TOML file and environment variables -- the most
// specific source wins.
func MergeConfig(cfg Config, flags CLIFlags) Config {
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	if flags.Host != "" {
		cfg.Host = flags.Host
	}
	return cfg
}

func main() {
	flags, err := ParseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg = MergeConfig(cfg, flags)
	SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error binding to %s: %v\n", addr, err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		log.Println("shutting down gracefully...")
		srv.Close()
		listener.Close()
	}()

	logf(levelInfo, "starting ai-inference-gateway on %s", addr)
	if cfg.Elasticsearch.Enabled {
		logf(levelInfo, "elasticsearch export: enabled (%s)", cfg.Elasticsearch.URL)
	} else {
		logf(levelInfo, "elasticsearch export: disabled")
	}
	if cfg.BedrockRegion != "" {
		logf(levelInfo, "bedrock: default region %s", cfg.BedrockRegion)
	}

	if err := http.Serve(listener, srv); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
