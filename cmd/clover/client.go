package main

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// newClient builds the data client from cfg. cache may be nil.
func newClient(cfg *config.Config, logger ectologger.Logger, cache *redis.Client) (*clover.DB, error) {
	var adapter clover.Adapter = clover.Postgres(cfg.Database(), logger)
	if cfg.DatabaseURL != "" {
		a, err := clover.PostgresURL(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	return clover.New(logger, clover.Options{
		Adapter:            adapter,
		Log:                cfg.ClientLogDefinitions(),
		TransactionOptions: cfg.TransactionOptions(),
		Omit:               cfg.GlobalOmit(),
		Comments: []clover.CommentPlugin{
			clover.Application(cfg.AppName),
			clover.TraceContext(),
			clover.QueryTags(),
		},
		Cache:           cache,
		TenantIsolation: cfg.TenantIsolation,
	})
}

// migrations runs pending migrations once the client has connected.
type migrations struct {
	db      *clover.DB
	service *database.MigrationService
}

func (m *migrations) GetName() string { return "migrations" }

func (m *migrations) DependsOn() []string { return []string{m.db.GetName()} }

func (m *migrations) Start(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	return m.service.Up(conn)
}

func (m *migrations) Stop(ctx context.Context) error { return nil }
