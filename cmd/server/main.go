package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pocket-telemetry/backend/internal/api"
	"github.com/pocket-telemetry/backend/internal/catalog"
	"github.com/pocket-telemetry/backend/internal/config"
	"github.com/pocket-telemetry/backend/internal/gateway"
	"github.com/pocket-telemetry/backend/internal/publish"
	"github.com/pocket-telemetry/backend/internal/session"
	"github.com/pocket-telemetry/backend/internal/storage"
	"github.com/pocket-telemetry/backend/internal/web"
	"github.com/spf13/pflag"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var port int

	flagSet := pflag.NewFlagSet("pocket-telemetry", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the XML config file (default: next to the executable)")
	flagSet.IntVar(&port, "port", 0, "listen port, overrides the config file and PORT")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if configPath == "" {
		// Get the executable's directory for config resolution
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), config.FileName)
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Signal catalog
	cat := catalog.Default()
	if cfg.Storage.CatalogFile != "" {
		cat, err = catalog.LoadFile(cfg.Storage.CatalogFile)
		if err != nil {
			return fmt.Errorf("failed to load signal catalog: %w", err)
		}
		fmt.Printf("Loaded signal catalog from %s\n", cfg.Storage.CatalogFile)
	}

	// Saved credential slot
	var credStore storage.CredentialStore = storage.NewMemoryCredentialStore()
	if cfg.Storage.PersistCredentials {
		fileStore, err := storage.NewFileCredentialStore(cfg.GetDataDir())
		if err != nil {
			return fmt.Errorf("failed to initialize credential storage: %w", err)
		}
		credStore = fileStore
	}

	// Remote services
	gw, err := gateway.NewClient(gateway.Config{
		AuthBaseURL:      cfg.Telemetry.AuthBaseURL,
		TelemetryBaseURL: cfg.Telemetry.TelemetryBaseURL,
		QueryTimeout:     cfg.QueryTimeout(),
	})
	if err != nil {
		return err
	}

	// Result publishing
	var publisher publish.Publisher = publish.Noop{}
	if cfg.Publish.MQTTBroker != "" {
		mqttPub := publish.NewMQTTPublisher(publish.Config{
			Broker:      cfg.Publish.MQTTBroker,
			ClientID:    cfg.Publish.MQTTClientID,
			Username:    cfg.Publish.MQTTUsername,
			Password:    cfg.Publish.MQTTPassword,
			TopicPrefix: cfg.Publish.TopicPrefix,
			QoS:         byte(cfg.Publish.QoS),
		})
		if err := mqttPub.Start(); err != nil {
			fmt.Printf("Warning: result publishing disabled: %v\n", err)
		} else {
			publisher = mqttPub
		}
	}
	defer publisher.Close()

	// Initialize session manager
	sessionMgr := session.NewManager(cat)
	defer sessionMgr.CloseAll()

	// Start background session cleanup
	cleanupDone := make(chan struct{})
	defer close(cleanupDone)
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessionMgr.CleanupIdle(cfg.IdleTimeout())
			case <-cleanupDone:
				return
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	mwConfig := api.MiddlewareConfig{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
	}
	if cfg.Server.EnableCORS {
		mwConfig.AllowOrigins = cfg.GetAllowOrigins()
	}
	if cfg.Telemetry.EnableDevProxy {
		mwConfig.TelemetryProxyTarget = cfg.Telemetry.TelemetryBaseURL
	}
	if err := api.SetupMiddleware(e, mwConfig); err != nil {
		return err
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		SessionMgr:    sessionMgr,
		Credentials:   credStore,
		Gateway:       gw,
		Publisher:     publisher,
		Catalog:       cat,
		StrictSignals: cfg.Advanced.StrictSignals,
		Version:       Version,
	}))

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, credStore.Persistent(), embeddedMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func printBanner(cfg *config.AppConfig, configPath string, persistent, embedded bool) {
	mode := "Development"
	if embedded {
		mode = "Embedded Frontend"
	}
	creds := "memory only"
	if persistent {
		creds = "saved to data dir"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           PocketTelemetry Explorer Server                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Auth:      %-46s║\n", cfg.Telemetry.AuthBaseURL)
	fmt.Printf("║  Telemetry: %-46s║\n", cfg.Telemetry.TelemetryBaseURL)
	fmt.Printf("║  Creds:     %-46s║\n", creds)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embedded {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
