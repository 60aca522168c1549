package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/qrow-bridge/internal/bridge"
	"github.com/qrow-bridge/internal/clay"
	"github.com/qrow-bridge/internal/config"
	"github.com/qrow-bridge/internal/devicelink"
	"github.com/qrow-bridge/internal/jsonrpc"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides QROW_BRIDGE_CONFIG)")
	devMode := pflag.Bool("dev", false, "development mode: serve HTTP on port 8080")
	pflag.Parse()

	log.Println("Starting Qrow settings bridge...")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *devMode {
		cfg.Network.HTTP.DevMode = true
	}

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	log.Printf("Starting Qrow settings bridge with config: %+v", cfg)

	descriptor := clay.Default()
	if err := descriptor.Validate(); err != nil {
		log.Fatalf("Invalid settings descriptor: %v", err)
	}

	// The device link is the bridge's message channel to the watch
	deviceLink := devicelink.NewServer(cfg)
	settingsBridge := bridge.New(deviceLink)

	rpcServer := jsonrpc.NewServer(cfg, settingsBridge, descriptor)

	// Determine HTTP port based on dev mode
	httpPort := cfg.Network.HTTP.Port
	if cfg.Network.HTTP.DevMode {
		httpPort = 8080
		log.Println("Development mode: using port 8080")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpPort),
		Handler:      rpcServer.NewRouter(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Start device link
	go func() {
		log.Printf("Starting device link on port %d", cfg.Network.Device.Port)
		if err := deviceLink.ListenAndServe(); err != nil {
			log.Fatalf("Device link failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down servers...")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Shutdown device link
	if err := deviceLink.Close(); err != nil {
		log.Printf("Device link shutdown error: %v", err)
	}

	log.Println("Servers stopped")
}
