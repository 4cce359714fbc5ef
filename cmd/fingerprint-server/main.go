// Command fingerprint-server serves minutiae matching over HTTP.
//
// Usage: fingerprint-server [-config fps.toml]
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/internal/log"
	"github.com/high-horse/fingerprint-server/server"
)

func main() {
	path := flag.String("config", "", "TOML configuration file")
	flag.Parse()

	if err := config.LoadConfig(*path); err != nil {
		log.Logger().Fatalf("load config: %v", err)
	}
	logger := log.NewLogger(config.Config.Log)

	srv, err := server.New(config.Config, logger)
	if err != nil {
		logger.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Listen(); err != nil {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	<-sigChan
	logger.Info("shutting down server")
	if err := srv.Shutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}
