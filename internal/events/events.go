// Package events turns successful client writes into change events on Kafka.
package events

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/clover"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
)

type Publisher interface {
	Publish(ctx context.Context, events ...*kafka.ChangeEvent) error
}

const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

func eventType(ctx context.Context, action clover.Action) string {
	if action == clover.ActionUpsert && clover.UpsertCreated(ctx) {
		return Created
	}
	switch action {
	case clover.ActionCreate, clover.ActionCreateMany, clover.ActionCreateManyAndReturn:
		return Created
	case clover.ActionDelete, clover.ActionDeleteMany:
		return Deleted
	}
	return Updated
}

// Middleware publishes a change event for every successful model write. Writes inside a
// transaction publish once it commits; a rollback drops them.
func Middleware(publisher Publisher, logger ectologger.Logger) clover.Middleware {
	return func(next clover.QueryFunc) clover.QueryFunc {
		return func(ctx context.Context, params clover.QueryParams) (any, error) {
			res, err := next(ctx, params)
			if err != nil || params.Model == "" || !params.Action.IsWrite() {
				return res, err
			}

			events := Build(ctx, params, res)
			if len(events) == 0 {
				return res, err
			}

			database.AfterCommit(ctx, func(ctx context.Context) {
				if pubErr := publisher.Publish(ctx, events...); pubErr != nil {
					logger.WithContext(ctx).WithError(pubErr).WithFields(map[string]any{
						"model":  params.Model,
						"action": params.Action,
						"events": len(events),
					}).Error("failed to publish change events")
				}
			})
			return res, err
		}
	}
}

// Build describes the result of a write as change events. Single record writes yield one
// event per record, bulk writes that only report a count yield one summary event. Record data
// keeps only the projected columns and never carries secret columns.
func Build(ctx context.Context, params clover.QueryParams, res any) []*kafka.ChangeEvent {
	base := kafka.ChangeEvent{
		EventType: eventType(ctx, params.Action),
		TenantID:  appctx.GetTenantID(ctx),
		Model:     params.Model,
		Action:    string(params.Action),
		RequestID: appctx.GetRequestID(ctx),
		Timestamp: time.Now().UTC(),
	}

	if count, ok := res.(int64); ok {
		if count == 0 {
			return nil
		}
		ev := base
		ev.Count = count
		return []*kafka.ChangeEvent{&ev}
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
	events := make([]*kafka.ChangeEvent, 0, len(records))
	for _, r := range records {
		values, err := clover.RecordMap(r, selected, omitted)
		if err != nil {
			continue
		}
		data, err := json.Marshal(values)
		if err != nil {
			continue
		}
		id, _ := values["id"].(string)
		tenantID, _ := values["tenant_id"].(string)

		ev := base
		ev.Data = data
		ev.RecordID = id
		if tenantID != "" {
			ev.TenantID = tenantID
		} else if params.Model == "Tenant" {
			ev.TenantID = id
		}
		events = append(events, &ev)
	}
	return events
}
