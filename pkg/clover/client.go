// Package clover is the typed data client for the CRM schema.
package clover

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	defaultMaxWait = 2 * time.Second
	defaultTimeout = 5 * time.Second
)

// Options configures a DB.
type Options struct {
	Adapter Adapter
	Log     []LogDefinition
	// TransactionOptions are the defaults for Transaction and Batch.
	TransactionOptions TransactionOptions
	// Omit hides columns from every query result, keyed by model name.
	Omit     map[string][]string
	Comments []CommentPlugin
	// Cache enables CacheStrategy on find operations.
	Cache *redis.Client
	// TenantIsolation scopes queries to the tenant carried by the context.
	TenantIsolation bool
}

// DB is the client. Each model is reached through its delegate.
type DB struct {
	logger   ectologger.Logger
	opts     Options
	validate *validator.Validate

	mu          sync.RWMutex
	conn        database.DB
	middlewares []Middleware

	lmu       sync.RWMutex
	emitters  map[LogLevel][]LogEmit
	listeners map[LogLevel][]func(LogEvent)

	Tenant       *Delegate[Tenant]
	User         *Delegate[User]
	RefreshToken *Delegate[RefreshToken]
	Client       *Delegate[Client]
	Interaction  *Delegate[Interaction]
	Segment      *Delegate[Segment]
	Notification *Delegate[Notification]
	AuditLog     *Delegate[AuditLog]
}

// New validates opts and builds a client. It does not connect.
func New(logger ectologger.Logger, opts Options) (*DB, error) {
	if opts.Adapter == nil {
		return nil, validationError("Options.Adapter is required")
	}

	tx, err := normalizeTxOptions(opts.TransactionOptions)
	if err != nil {
		return nil, err
	}
	opts.TransactionOptions = tx

	emitters, err := parseLogDefinitions(opts.Log)
	if err != nil {
		return nil, err
	}

	if err := validateOmit(opts.Omit); err != nil {
		return nil, err
	}

	db := &DB{
		logger:    logger,
		opts:      opts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		emitters:  emitters,
		listeners: map[LogLevel][]func(LogEvent){},
	}
	db.Tenant = &Delegate[Tenant]{db: db, model: tenantModel}
	db.User = &Delegate[User]{db: db, model: userModel}
	db.RefreshToken = &Delegate[RefreshToken]{db: db, model: refreshTokenModel}
	db.Client = &Delegate[Client]{db: db, model: clientModel}
	db.Interaction = &Delegate[Interaction]{db: db, model: interactionModel}
	db.Segment = &Delegate[Segment]{db: db, model: segmentModel}
	db.Notification = &Delegate[Notification]{db: db, model: notificationModel}
	db.AuditLog = &Delegate[AuditLog]{db: db, model: auditLogModel}

	return db, nil
}

func modelColumns() map[string][]string {
	return map[string][]string{
		tenantModel.name:       tenantModel.columns,
		userModel.name:         userModel.columns,
		refreshTokenModel.name: refreshTokenModel.columns,
		clientModel.name:       clientModel.columns,
		interactionModel.name:  interactionModel.columns,
		segmentModel.name:      segmentModel.columns,
		notificationModel.name: notificationModel.columns,
		auditLogModel.name:     auditLogModel.columns,
	}
}

func validateOmit(omit map[string][]string) error {
	known := modelColumns()
	for name, cols := range omit {
		columns, ok := known[name]
		if !ok {
			return validationError("Unknown model %q in Options.Omit", name)
		}
		for _, c := range cols {
			if !ectolinq.Contains(columns, c) {
				return validationError("Unknown field %q for model %s in Options.Omit", c, name)
			}
		}
	}
	return nil
}

// Connect opens the connection pool. Operations connect lazily, so calling it is optional.
func (db *DB) Connect(ctx context.Context) error {
	_, err := db.connection(ctx)
	return err
}

func (db *DB) connection(ctx context.Context) (database.DB, error) {
	db.mu.RLock()
	conn := db.conn
	db.mu.RUnlock()
	if conn != nil {
		return conn, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn != nil {
		return db.conn, nil
	}

	ctx, span := tracing.StartSpan(ctx, "clover.DB.Connect")
	defer span.End()

	conn, err := db.opts.Adapter.Connect(ctx)
	if err == nil {
		if err = conn.PingContext(ctx); err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		initErr := initError(err)
		span.RecordError(initErr)
		db.emit(ctx, LogEvent{Level: LogError, Target: "clover:connect", Message: initErr.Message})
		return nil, initErr
	}

	db.conn = conn
	db.emit(ctx, LogEvent{Level: LogInfo, Target: "clover:connect", Message: "Connected to " + db.opts.Adapter.Provider()})
	return conn, nil
}

// Disconnect closes the pool. A later operation reconnects through the adapter.
func (db *DB) Disconnect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		db.logger.WithContext(ctx).WithError(err).Error("failed to close database connection")
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

// GetName, DependsOn, Start and Stop let the client run as a startup dependency.
func (db *DB) GetName() string { return "clover" }

func (db *DB) DependsOn() []string { return nil }

func (db *DB) Start(ctx context.Context) error { return db.Connect(ctx) }

func (db *DB) Stop(ctx context.Context) error { return db.Disconnect(ctx) }

// Conn returns the underlying pool, connecting when needed.
func (db *DB) Conn(ctx context.Context) (database.DB, error) {
	return db.connection(ctx)
}

// Ping checks the pool, connecting when needed.
func (db *DB) Ping(ctx context.Context) error {
	conn, err := db.connection(ctx)
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

func (db *DB) validateInput(v any) error {
	if err := db.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return validationError("Invalid value for argument `%s`: failed on the '%s' rule.", lowerFirst(fe.Field()), fe.Tag())
		}
		return validationError("Invalid arguments: %v", err)
	}
	return nil
}
