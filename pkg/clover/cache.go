package clover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/redis"
)

const cachePrefix = "clover:cache:"

func versionKey(model string) string {
	return cachePrefix + model + ":version"
}

func cacheKey(model string, version int64, query string, args []any) string {
	params, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(query+"\x00"), params...))
	return fmt.Sprintf("%s%s:%d:%s", cachePrefix, model, version, hex.EncodeToString(sum[:]))
}

// cached serves dest from Redis when a strategy is set, otherwise calls load and stores the result.
// Reads inside a transaction always hit the database.
func (db *DB) cached(ctx context.Context, model string, strategy *CacheStrategy, query string, args []any, dest any, load func() error) error {
	cache := db.opts.Cache
	if strategy == nil || strategy.TTL <= 0 || cache == nil {
		return load()
	}
	if _, inTx := database.TxFromContext(ctx); inTx {
		return load()
	}

	logger := db.logger.WithContext(ctx).WithFields(map[string]any{"model": model})

	version, err := cache.GetInt(ctx, versionKey(model))
	if err != nil {
		logger.WithError(err).Warn("query cache unavailable")
		return load()
	}
	key := cacheKey(model, version, query, args)

	raw, err := cache.Get(ctx, key)
	switch {
	case err == nil:
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(dest); err == nil {
			metrics.CacheRequestsTotal.WithLabelValues(model, "hit").Inc()
			return nil
		}
	case !errors.Is(err, redis.ErrNil):
		logger.WithError(err).Warn("failed to read query cache")
	}
	metrics.CacheRequestsTotal.WithLabelValues(model, "miss").Inc()

	if err := load(); err != nil {
		return err
	}

	// gob keeps columns hidden from JSON, such as password hashes
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dest); err != nil {
		logger.WithError(err).Warn("failed to encode query cache entry")
		return nil
	}
	if err := cache.Set(ctx, key, buf.Bytes(), strategy.TTL); err != nil {
		logger.WithError(err).Warn("failed to write query cache")
	}
	return nil
}

// invalidate bumps the cache version of each model so older entries are never read again.
// Inside a transaction the version is bumped again after commit, since a reader outside the
// transaction may cache the pre-commit rows under the first bump.
func (db *DB) invalidate(ctx context.Context, models ...string) {
	if db.opts.Cache == nil {
		return
	}
	db.bumpVersions(ctx, models)
	if _, inTx := database.TxFromContext(ctx); inTx {
		database.AfterCommit(ctx, func(ctx context.Context) {
			db.bumpVersions(ctx, models)
		})
	}
}

func (db *DB) bumpVersions(ctx context.Context, models []string) {
	for _, model := range models {
		if _, err := db.opts.Cache.Incr(ctx, versionKey(model)); err != nil {
			db.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"model": model}).
				Warn("failed to invalidate query cache")
		}
	}
}

func allModels() []string {
	return []string{
		tenantModel.name, userModel.name, refreshTokenModel.name, clientModel.name,
		interactionModel.name, segmentModel.name, notificationModel.name, auditLogModel.name,
	}
}
