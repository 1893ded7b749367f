package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"whatstock/internal/adapter/handler"
	"whatstock/internal/adapter/storage"
	"whatstock/internal/adapter/whatsapp"
	"whatstock/internal/config"
	"whatstock/internal/core/service"
	"whatstock/internal/port"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inventory, members, audit, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		logger.Error("storage init failed", "backend", cfg.StorageBackend, "err", err)
		os.Exit(1)
	}
	defer closeStorage()
	logger.Info("storage ready", "backend", cfg.StorageBackend)

	notifier := whatsapp.NewClient(whatsapp.Config{
		APIVersion:    cfg.GraphAPIVersion,
		PhoneNumberID: cfg.PhoneNumberID,
		Token:         cfg.WhatsAppToken,
		Timeout:       cfg.SendTimeout,
	}, logger)

	botService := service.New(inventory, members, audit, notifier, logger, service.Options{
		AdminIDs:          cfg.AdminIDs,
		RequireMembership: cfg.RequireMembership,
		HistoryLimit:      cfg.HistoryLimit,
	})

	webhookHandler := handler.New(botService, notifier, cfg.VerifyToken, cfg.AppSecret, logger)
	mux := http.NewServeMux()
	webhookHandler.Register(mux)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")
}

// buildStorage wires the three repositories onto the configured backend and
// returns a close function for the underlying connection.
func buildStorage(ctx context.Context, cfg config.Config) (
	port.InventoryRepository, port.MemberRepository, port.AuditRepository, func(), error,
) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemoryInventory(), storage.NewMemoryMembers(), storage.NewMemoryAudit(),
			func() {}, nil

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		if err := storage.MigrateMySQL(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return storage.NewMySQLInventory(db), storage.NewMySQLMembers(db), storage.NewMySQLAudit(db),
			func() { db.Close() }, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", cfg.SQLitePath+"?_foreign_keys=on")
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		if err := storage.MigrateSQLite(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return storage.NewSQLiteInventory(db), storage.NewSQLiteMembers(db), storage.NewSQLiteAudit(db),
			func() { db.Close() }, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, nil, nil, err
		}
		return storage.NewRedisInventory(rdb), storage.NewRedisMembers(rdb), storage.NewRedisAudit(rdb),
			func() { rdb.Close() }, nil
	}

	// config.Load already rejected anything else.
	return nil, nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
