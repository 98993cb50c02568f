package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/park285/Cheese-PvP-server/internal/config"
	"github.com/park285/Cheese-PvP-server/internal/msgcat"
	"github.com/park285/Cheese-PvP-server/internal/obslog"
	"github.com/park285/Cheese-PvP-server/internal/outcome"
	"github.com/park285/Cheese-PvP-server/internal/pvpchess"
	"github.com/park285/Cheese-PvP-server/internal/roomstore"
	"github.com/park285/Cheese-PvP-server/internal/wsserver"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	lg := obslog.L()

	cat, err := msgcat.New(cfg.MessageTemplateDir)
	if err != nil {
		lg.Fatal("message catalog error", zap.Error(err))
	}

	// Redis is optional: without it rooms live only in memory
	var (
		rdb    *redis.Client
		store  *roomstore.Store
		lister wsserver.RoomLister
	)
	if cfg.RedisURL != "" {
		rdb, err = openRedis(cfg.RedisURL)
		if err != nil {
			lg.Fatal("redis init error", zap.Error(err))
		}
		store = roomstore.NewStore(rdb)
		lister = store
	}

	gw, err := openGateway(cfg)
	if err != nil {
		lg.Fatal("outcome gateway init error", zap.Error(err))
	}
	disp := outcome.NewDispatcher(gw, cfg.PersistTimeout)

	srv := wsserver.New(wsserver.Options{
		OriginPatterns: cfg.AllowedOrigins,
		OutboundBuffer: cfg.OutboundBuffer,
		PingInterval:   cfg.PingInterval,
	})
	opts := []pvpchess.Option{
		pvpchess.WithNotifier(srv),
		pvpchess.WithRecorder(disp),
		pvpchess.WithCatalog(cat),
	}
	if store != nil {
		opts = append(opts, pvpchess.WithSnapshots(store))
	}
	mgr := pvpchess.NewManager(opts...)
	srv.Attach(mgr)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           wsserver.NewMux(srv, lister),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server error", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	lg.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		lg.Warn("http shutdown error", zap.Error(err))
	}
	if err := srv.Close(ctx); err != nil {
		lg.Warn("ws shutdown error", zap.Error(err))
	}
	if err := mgr.FlushSnapshots(ctx); err != nil {
		lg.Warn("snapshot drain error", zap.Error(err))
	}
	if err := disp.Close(ctx); err != nil {
		lg.Warn("outcome drain error", zap.Error(err))
	}
	if c, ok := gw.(io.Closer); ok {
		_ = c.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func openRedis(raw string) (*redis.Client, error) {
	opt, err := redis.ParseURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// openGateway prefers Postgres, then the HTTP recorder, then memory.
func openGateway(cfg *appcfg.AppConfig) (outcome.Gateway, error) {
	switch {
	case cfg.DatabaseURL != "":
		gw, err := outcome.NewPostgresGateway(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case cfg.MatchRecordURL != "":
		gw, err := outcome.NewHTTPGateway(cfg.MatchRecordURL, cfg.PersistTimeout)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		obslog.L().Warn("no outcome store configured; results are kept in memory only")
		return outcome.NewMemoryGateway(), nil
	}
}
