// usercenter - account, session and capability service
//
// This is the main entry point for the user centre. It serves:
//   - Password and TOTP login with JWT access tokens and refresh sessions
//   - Registration gated by the guest "register" capability
//   - Capability grant/revoke between admins and superAdmins
//   - OAuth app registration and a security audit trail
//
// Auth events are written to SQLite and, when enabled, published over MQTT
// and recorded in InfluxDB. Refresh lookups can be fronted by Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/ZZSZ-YCT/customSystem/migrations"

	"github.com/ZZSZ-YCT/customSystem/internal/api"
	"github.com/ZZSZ-YCT/customSystem/internal/audit"
	"github.com/ZZSZ-YCT/customSystem/internal/auth"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/config"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/database"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/influxdb"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/logging"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/mqtt"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/tokencache"
	"github.com/ZZSZ-YCT/customSystem/internal/oauth"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configPathEnv overrides defaultConfigPath.
const configPathEnv = "USERCENTER_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence with matching deferred teardown
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting user centre",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	identities := auth.NewIdentityStore(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	metrics := api.NewMetrics(prometheus.NewRegistry())

	events := auth.EventRecorders{
		audit.NewRecorder(auditRepo, log.Logger),
		metrics,
	}

	// Refresh token store, optionally fronted by Redis
	var tokens auth.TokenStore = auth.NewTokenStore(db.DB)
	var cache *tokencache.Store
	if cfg.Redis.Enabled {
		cache, err = tokencache.Connect(ctx, cfg.Redis, tokens, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := cache.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		tokens = cache
		log.Info("refresh token cache enabled", "prefix", cfg.Redis.Prefix)
	} else {
		log.Info("refresh token cache disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher := mqtt.NewEventPublisher(mqttClient, log)
		// Runs before the client is closed.
		defer publisher.Close()
		events = append(events, publisher)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		events = append(events, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:          cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.Issuer,
		Audience:        cfg.Auth.Audience,
		AccessTokenTTL:  cfg.GetAccessTokenTTL(),
		RefreshTokenTTL: cfg.GetRefreshTokenTTL(),
	})
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	sessions := auth.NewSessionManager(identities, tokens, issuer,
		auth.WithEventRecorder(events),
		auth.WithRefreshRotation(cfg.Auth.RotateRefreshTokens),
		auth.WithSessionLogger(log.Logger),
	)
	registrar := auth.NewRegistrar(identities,
		auth.WithDefaultPermissions(cfg.Auth.DefaultPermissions),
		auth.WithTOTPSecretLength(cfg.Auth.TOTPSecretLength),
		auth.WithRegistrationEvents(events),
	)

	if _, err := auth.Bootstrap(ctx, identities, log.Logger); err != nil {
		return fmt.Errorf("seeding identities: %w", err)
	}

	if err := healthCheck(ctx, db, cache, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	go sessions.RunJanitor(ctx, cfg.GetJanitorInterval())

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Sessions:    sessions,
		Permissions: auth.NewPermissionService(identities, events),
		Registrar:   registrar,
		Apps:        oauth.NewService(oauth.NewSQLiteStore(db.DB), events),
		AuditRepo:   auditRepo,
		Health:      db,
		Metrics:     metrics,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path from the environment or default.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every enabled backend responds. Nil backends are
// disabled and skipped.
func healthCheck(ctx context.Context, db *database.DB, cache *tokencache.Store, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db == nil {
		return errors.New("database: not open")
	}
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cache != nil {
		if err := cache.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
