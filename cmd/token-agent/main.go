package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleksandrNi/token-agent/internal/agent"
)

func main() {
	configPath := flag.String("config", envOrDefault("CONFIG", "./token-agent.yaml"), "path to the agent's YAML config file")
	logLevel := flag.String("log-level", os.Getenv("LOG_LEVEL"), "overrides settings.logging.level from the config file")
	flag.Parse()

	a, err := agent.Build(agent.Options{
		ConfigPath:       *configPath,
		LogLevelOverride: *logLevel,
	})
	if err != nil {
		log.Fatalf("failed to start token agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		fmt.Fprintf(os.Stderr, "received %s, shutting down\n", sig)
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("token agent exited with error: %v", err)
	}
}

func envOrDefault(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}
