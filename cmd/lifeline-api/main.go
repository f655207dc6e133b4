// README: Entry point; loads config, wires services, starts the HTTP server and background monitors.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/events"
	httptransport "lifeline/internal/http"
	"lifeline/internal/infra"
	"lifeline/internal/logger"
	"lifeline/internal/maps"
	"lifeline/internal/modules/booking"
	"lifeline/internal/modules/fleet"
	"lifeline/internal/modules/matching"
	"lifeline/internal/modules/tracking"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName)

	if cfg.Auth.JWTSecret == "" {
		log.Error("LIFELINE_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.Migrate("migrations", cfg.DB.DSN); err != nil {
		log.Error("migrate", logger.Error(err))
		os.Exit(1)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("connect postgres", logger.Error(err))
		os.Exit(1)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	fleetSvc := fleet.NewService(fleet.NewStore(redisClient), logger.New("fleet"))
	matchingSvc := matching.NewService(fleetSvc)

	bookingSvc := booking.NewService(
		booking.NewStore(dbPool),
		booking.NewActiveCache(redisClient),
		matchingSvc,
		fleetSvc,
		booking.Config{
			RequestTTL: cfg.Dispatch.RequestTTL,
			ExpiryTick: time.Duration(cfg.Dispatch.ExpiryTickSeconds) * time.Second,
		},
		logger.New("booking"),
	)

	hub := tracking.NewHub(logger.New("tracking"))
	bookingSvc.SetNotifier(hub)

	if cfg.Rabbit.URL != "" {
		publisher, err := events.NewPublisher(cfg.Rabbit.URL, logger.New("events"))
		if err != nil {
			log.Error("connect rabbitmq", logger.Error(err))
			os.Exit(1)
		}
		defer publisher.Close()
		bookingSvc.SetPublisher(publisher)
	}

	var places *maps.PlacesService
	if cfg.Maps.APIKey != "" {
		places, err = maps.NewPlacesService(cfg.Maps.APIKey)
		if err != nil {
			log.Error("maps init", logger.Error(err))
			os.Exit(1)
		}
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Error("maps init", logger.Error(err))
			os.Exit(1)
		}
		bookingSvc.SetRouteEstimator(routes)
	}

	if cfg.Fleet.SeedFile != "" {
		vehicles, err := fleet.LoadSeedFile(cfg.Fleet.SeedFile)
		if err != nil {
			log.Error("load fleet seed", logger.Error(err))
			os.Exit(1)
		}
		if err := fleetSvc.Seed(ctx, vehicles); err != nil {
			log.Error("seed fleet", logger.Error(err))
			os.Exit(1)
		}
	}

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Booking:         bookingSvc,
		Fleet:           fleetSvc,
		Matching:        matchingSvc,
		Hub:             hub,
		Places:          places,
		JWTSecret:       cfg.Auth.JWTSecret,
		DefaultRadiusKm: cfg.Dispatch.DefaultRadiusKm,
		Log:             logger.New("http"),
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go bookingSvc.RunExpiryMonitor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("listening", logger.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", logger.Error(err))
		os.Exit(1)
	}
}
