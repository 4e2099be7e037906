package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/api"
	"github.com/ycheng-dev/channelhub/internal/config"
	"github.com/ycheng-dev/channelhub/internal/conversation"
	"github.com/ycheng-dev/channelhub/internal/directory"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/membership"
	"github.com/ycheng-dev/channelhub/internal/moderation"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/stream"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

// env returns the named environment variable, or def when unset.
func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

var (
	addr             string
	mongoURI         string
	database         string
	signingKey       string
	allowedOrigins   stringSliceFlag
	sweepInterval    time.Duration
	referenceTZ      string
	moderationLevel  string
	alertInterval    time.Duration
	alertMaxDuration time.Duration
)

func main() {
	// .env is optional; flags and real environment take precedence
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", env("CHANNELHUB_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&mongoURI, "mongo-uri", env("CHANNELHUB_MONGO_URI", "mongodb://localhost:27017"), "mongodb connection string")
	flag.StringVar(&database, "database", env("CHANNELHUB_DATABASE", "channelhub"), "database name")
	flag.StringVar(&signingKey, "signing-key", env("CHANNELHUB_SIGNING_KEY", ""), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&sweepInterval, "sweep-interval", config.DefaultSweepInterval, "expired membership sweep interval")
	flag.StringVar(&referenceTZ, "reference-tz", env("CHANNELHUB_REFERENCE_TZ", config.DefaultReferenceTZ), "timezone used to resolve the current day")
	flag.StringVar(&moderationLevel, "moderation-level", env("CHANNELHUB_MODERATION_LEVEL", ""), "content moderation level (strict, moderate, loose)")
	flag.DurationVar(&alertInterval, "alert-interval", alert.DefaultRepeatInterval, "force alert repeat interval")
	flag.DurationVar(&alertMaxDuration, "alert-max-duration", alert.DefaultMaxDuration, "force alert cycle cap")
	flag.Parse()

	logger := log.New(os.Stderr, "[channelhub] ", log.LstdFlags)

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:       addr,
		MongoURI:         mongoURI,
		Database:         database,
		Base64Secret:     signingKey,
		AllowedOrigins:   allowedOrigins,
		SweepInterval:    sweepInterval,
		ReferenceTZ:      referenceTZ,
		ModerationLevel:  moderationLevel,
		AlertInterval:    alertInterval,
		AlertMaxDuration: alertMaxDuration,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	gw, err := gateway.NewMongoGateway(logger, cfg.MongoURI, cfg.Database)
	if err != nil {
		logger.Fatal("gateway:", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gw.Close(closeCtx); err != nil {
			logger.Println("gateway close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewUpdater(mux)

	filter := moderation.NewFilter(moderation.WithLevel(cfg.ModerationLevel))

	membershipEngine := membership.NewEngine(logger, gw, statsUpdater)
	dir := directory.NewDirectory(logger, gw, statsUpdater, filter, cfg.ReferenceTZ)
	conversations := conversation.NewEngine(logger, gw, statsUpdater, filter)

	seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := dir.EnsureDefaultCategories(seedCtx); err != nil {
		cancel()
		logger.Fatal("seed categories:", err)
	}
	cancel()

	hub := stream.NewHub(logger, gw)
	dispatcher := alert.NewDispatcher(logger, hub, statsUpdater, cfg.AlertInterval, cfg.AlertMaxDuration)
	hub.SetAcker(dispatcher)

	sweeper := membership.NewSweeper(logger, membershipEngine, cfg.SweepInterval)

	srv := api.NewServer(mux, logger, cfg, gw, membershipEngine, dir, conversations, dispatcher, hub)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	sweeper.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	sweeper.Stop()
	dispatcher.Stop()
	hub.Shutdown()

	logger.Println("shutdown complete")
}
