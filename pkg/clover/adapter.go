package clover

import (
	"context"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Adapter opens the database connection the client runs on.
type Adapter interface {
	Provider() string
	Connect(ctx context.Context) (database.DB, error)
}

// PostgresAdapter connects with lib/pq through sqlx.
type PostgresAdapter struct {
	dsn    string
	config database.Config
	logger ectologger.Logger
}

// Postgres builds an adapter from a connection config, including its pool settings.
func Postgres(cfg database.Config, logger ectologger.Logger) *PostgresAdapter {
	return &PostgresAdapter{dsn: cfg.DSN(), config: cfg, logger: logger}
}

// PostgresURL builds an adapter from a postgres:// connection string.
func PostgresURL(dsn string, logger ectologger.Logger) (*PostgresAdapter, error) {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return nil, &InitializationError{
			Message:       "The provided database string is invalid. The scheme is not recognized in database URL.",
			ErrorCode:     CodeInvalidDatasourceURL,
			ClientVersion: Version,
			cause:         err,
		}
	}
	return &PostgresAdapter{dsn: dsn, logger: logger}, nil
}

func (a *PostgresAdapter) Provider() string { return "postgres" }

func (a *PostgresAdapter) Connect(ctx context.Context) (database.DB, error) {
	return database.Open(ctx, a.dsn, a.config, a.logger)
}

type existingAdapter struct {
	db database.DB
}

// FromDB runs the client on an already open pool. Disconnect closes it, after which the client cannot reconnect.
func FromDB(db database.DB) Adapter {
	return existingAdapter{db: db}
}

func (a existingAdapter) Provider() string { return a.db.DriverName() }

func (a existingAdapter) Connect(ctx context.Context) (database.DB, error) {
	return a.db, nil
}
