// Package audit records AuditLog rows for mutations of audited models.
package audit

import (
	"context"
	"net"
	"reflect"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/clover"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// DefaultEntities are the models audited when none are given.
var DefaultEntities = []string{"Client", "Segment", "User"}

type Recorder struct {
	db       *clover.DB
	logger   ectologger.Logger
	entities map[string]bool
}

func NewRecorder(db *clover.DB, logger ectologger.Logger, entities ...string) *Recorder {
	if len(entities) == 0 {
		entities = DefaultEntities
	}
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[e] = true
	}
	return &Recorder{db: db, logger: logger, entities: set}
}

func action(ctx context.Context, a clover.Action) string {
	if a == clover.ActionUpsert && clover.UpsertCreated(ctx) {
		return ActionCreate
	}
	switch a {
	case clover.ActionCreate, clover.ActionCreateMany, clover.ActionCreateManyAndReturn:
		return ActionCreate
	case clover.ActionDelete, clover.ActionDeleteMany:
		return ActionDelete
	}
	return ActionUpdate
}

// Middleware writes the audit rows with the same context as the mutation, so they join its
// transaction. Inside a transaction a failed audit write fails the operation; outside one it is
// logged.
func (r *Recorder) Middleware() clover.Middleware {
	return func(next clover.QueryFunc) clover.QueryFunc {
		return func(ctx context.Context, params clover.QueryParams) (any, error) {
			res, err := next(ctx, params)
			if err != nil || !params.Action.IsWrite() || !r.entities[params.Model] {
				return res, err
			}

			if auditErr := r.record(ctx, params, res); auditErr != nil {
				if params.RunInTransaction {
					return nil, auditErr
				}
				r.logger.WithContext(ctx).WithError(auditErr).WithFields(map[string]any{
					"entity": params.Model,
					"action": params.Action,
				}).Error("failed to record audit log")
			}
			return res, nil
		}
	}
}

func (r *Recorder) record(ctx context.Context, params clover.QueryParams, res any) error {
	entries := Entries(ctx, params, res)
	act := action(ctx, params.Action)
	hidden := r.db.GlobalOmit(params.Model)
	for _, in := range entries {
		for _, k := range hidden {
			delete(in.NewValues, k)
			delete(in.OldValues, k)
		}
		if in.TenantID == uuid.Nil {
			r.logger.WithContext(ctx).WithFields(map[string]any{"entity": params.Model}).Debug("skipping audit log without tenant")
			continue
		}
		if _, err := r.db.AuditLog.Create(ctx, clover.CreateArgs[clover.AuditLog]{Data: in}); err != nil {
			metrics.AuditLogsRecorded.WithLabelValues(params.Model, act, "error").Inc()
			return errors.Wrapf(err, "failed to audit %s %s", params.Model, params.Action)
		}
		metrics.AuditLogsRecorded.WithLabelValues(params.Model, act, "success").Inc()
	}
	return nil
}

// Entries describes a write result as audit rows. Creates and updates store the record as new
// values, deletes store it as old values. A bulk write that only reports a count becomes one
// row without an entity id. Only the columns the write projected are stored.
func Entries(ctx context.Context, params clover.QueryParams, res any) []clover.AuditLogCreateInput {
	base := clover.AuditLogCreateInput{
		UserID:    appctx.UserUUID(ctx),
		Action:    action(ctx, params.Action),
		Entity:    params.Model,
		UserAgent: optional(appctx.GetUserAgent(ctx)),
	}
	if ip := appctx.GetRemoteIP(ctx); net.ParseIP(ip) != nil {
		base.IPAddress = &ip
	}
	if tenantID, ok, err := appctx.TenantUUID(ctx); ok && err == nil {
		base.TenantID = tenantID
	}

	if count, ok := res.(int64); ok {
		if count == 0 {
			return nil
		}
		in := base
		in.NewValues = map[string]any{"count": count, "operation": string(params.Action)}
		return []clover.AuditLogCreateInput{in}
	}

	v := reflect.ValueOf(res)
	if !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
		return nil
	}
	var records []any
	if v.Kind() == reflect.Slice {
		for i := 0; i < v.Len(); i++ {
			records = append(records, v.Index(i).Interface())
		}
	} else {
		records = []any{res}
	}

	selected, omitted := clover.Projection(params.Args)
	entries := make([]clover.AuditLogCreateInput, 0, len(records))
	for _, rec := range records {
		values, err := clover.RecordMap(rec, selected, omitted)
		if err != nil {
			continue
		}
		in := base
		if id, ok := values["id"].(string); ok {
			in.EntityID = &id
		}
		if tid, ok := values["tenant_id"].(string); ok {
			if parsed, err := uuid.Parse(tid); err == nil {
				in.TenantID = parsed
			}
		}
		if in.Action == ActionDelete {
			in.OldValues = values
		} else {
			in.NewValues = values
		}
		entries = append(entries, in)
	}
	return entries
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
