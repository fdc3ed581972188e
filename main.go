package main

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-service/api"
	"board-service/config"
	"board-service/domain"
	"board-service/eventbus"
	"board-service/live"
	"board-service/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	var store domain.Storage
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; boards are lost on restart")
		store = storage.NewMemory()
	default:
		tables, err := storage.NewTables(cfg.Storage.ConnectionString, cfg.Storage.Tables)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = tables
	}

	var locks domain.Locker = domain.NewLocalLocker()
	if cfg.Redis.ConnectionString != "" {
		opts, err := storage.ParseRedisConnectionString(cfg.Redis.ConnectionString)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(opts)
		store = storage.NewCache(store, rc, cfg.Redis.CacheTTL)
		locks = storage.NewRedisLocker(rc, cfg.Redis.LockTTL)
		log.WithField("addr", opts.Addr).Info("redis cache and locks enabled")
	}

	bus := eventbus.New(cfg.Events.BufferSize)
	if err := bus.Instrument(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("metrics: %v", err)
	}

	var auth *api.Auth
	if cfg.Auth.TestMode {
		log.Warn("AUTH0_TEST_MODE enabled; accepting HS256 test tokens")
		auth = api.NewTestAuth([]byte(cfg.Auth.TestSecret))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth.Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth.Audience, "https://"+cfg.Auth.Domain+"/", cfg.Auth.JWKSCacheTTL)
	}

	logger := log.StandardLogger()
	authz := domain.NewMemberAuthorizer(store)
	viewer := live.NewHandler(bus, logger)
	viewer.PingInterval = cfg.Events.PingInterval

	svc := api.Services{
		Boards:  domain.NewBoardService(store, authz, bus, locks),
		Columns: domain.NewColumnService(store, authz, bus, locks),
		Tasks:   domain.NewTaskService(store, authz, bus, locks),
		Live:    viewer,
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, svc, auth, api.Options{
		RateLimit:      api.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	log.WithFields(log.Fields{
		"addr":    cfg.Addr(),
		"storage": cfg.Storage.Driver,
	}).Info("board service starting")
	e.Logger.Fatal(e.Start(cfg.Addr()))
}
