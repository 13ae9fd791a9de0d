package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tageampi/vintohub/internal/config"
	"github.com/tageampi/vintohub/internal/database"
	"github.com/tageampi/vintohub/internal/handlers"
	"github.com/tageampi/vintohub/internal/repository"
	"github.com/tageampi/vintohub/internal/services"
)

type stores struct {
	messages services.MessageStore
	users    handlers.UserDirectory
	closers  []func() error
	log      *slog.Logger
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("Failed to close store", "err", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	s := &stores{log: log}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.ConnectDB(ctx, cfg.DBUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.messages = repository.NewMessageRepository(pool)
		s.users = repository.NewUserRepository(pool)
		log.Info("Connected to PostgreSQL")

	case config.StoreDriverBadger:
		db, err := database.OpenBadger(cfg.BadgerPath, false)
		if err != nil {
			return nil, err
		}
		repo := repository.NewBadgerMessageRepository(db, log)
		s.closers = append(s.closers, db.Close, repo.Close)
		s.messages = repo
		s.users = repository.NewMemoryUserRepository(cfg.DemoUsers)
		log.Info("Opened badger store", "path", cfg.BadgerPath)

	case config.StoreDriverMemory:
		s.messages = repository.NewMemoryMessageRepository()
		s.users = repository.NewMemoryUserRepository(cfg.DemoUsers)
		log.Warn("Using in-memory store, messages are lost on restart")

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	return s, nil
}
