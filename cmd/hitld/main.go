package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	hitl "github.com/rotorstar/hitl-protocol"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	config, err := hitl.ConfigFromEnv()
	if err != nil {
		exitf("invalid environment: %v", err)
	}
	if *configPath != "" {
		if err := hitl.LoadConfig(config, *configPath); err != nil {
			exitf("invalid configuration: %v", err)
		}
	}
	if err := config.Validate(); err != nil {
		exitf("invalid configuration: %v", err)
	}

	service := hitl.New(hitl.WithConfig(config))
	defer service.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           service.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", config.ServiceName, config.ResolveBaseURL())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			exitf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
