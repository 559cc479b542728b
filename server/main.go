package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/server.yml", "Path to the server config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, v, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Listen = addr
	}

	log, level := NewLogger(cfg.Log)
	defer log.Sync()

	WatchConfig(v, func(next *Config) {
		lvl := parseLevel(next.Log.Level)
		if lvl != level.Level() {
			level.SetLevel(lvl)
			log.Info("log level changed", zap.Stringer("level", lvl))
		}
	}, func(err error) {
		log.Warn("config reload rejected", zap.String("class", string(ClassConfig)), zap.Error(err))
	})

	var (
		db      *DB
		journal Recorder = nopRecorder{}
	)
	if cfg.Journal.Path != "" {
		db, err = OpenDB(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
		}
		defer db.Close()
		j := NewJournal(db, log)
		defer j.Stop()
		journal = j
	}

	auth, err := NewAuth(cfg.Admin)
	if err != nil {
		return err
	}

	catalog := NewCatalog()
	lobby, err := NewLobby(log, catalog, cfg.Games, GameConfig{
		TickRate:        cfg.TickRate,
		TankSpeed:       cfg.TankSpeed,
		CheckInvariants: cfg.CheckInvariants,
	}, func(e GameEntry) MapSource {
		return FileMapSource{Path: e.Map, Catalog: catalog}
	}, journal)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lobby.Start(ctx)
	defer lobby.Stop()

	hub := NewHub(log, lobby, cfg.WS)
	go hub.Run(ctx.Done())

	if !cfg.Log.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := SetupRoutes(&Server{
		log:       log,
		hub:       hub,
		lobby:     lobby,
		auth:      auth,
		db:        db,
		publicURL: cfg.PublicURL,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Listen), zap.Int("games", len(cfg.Games)))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
