package clover

import (
	"context"
	"net/url"
	"sort"
	"strings"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CommentInfo describes the operation a statement belongs to.
type CommentInfo struct {
	Model  string
	Action Action
}

// CommentPlugin contributes key/value pairs to the sqlcommenter comment appended to each statement.
// Later plugins override earlier ones on key conflicts. Empty values are dropped.
type CommentPlugin func(ctx context.Context, info CommentInfo) map[string]string

func (db *DB) comment(ctx context.Context, query string) string {
	if len(db.opts.Comments) == 0 {
		return query
	}

	var info CommentInfo
	if op, ok := operationFrom(ctx); ok {
		info = CommentInfo{Model: op.model, Action: op.action}
	}

	tags := map[string]string{}
	for _, plugin := range db.opts.Comments {
		for k, v := range plugin(ctx, info) {
			if v != "" {
				tags[k] = v
			}
		}
	}
	if len(tags) == 0 {
		return query
	}
	return query + " " + formatComment(tags)
}

// formatComment renders tags in sqlcommenter format, sorted by key.
func formatComment(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.ReplaceAll(escapeComment(tags[k]), "'", `\'`)
		parts = append(parts, escapeComment(k)+"='"+value+"'")
	}
	return "/*" + strings.Join(parts, ",") + "*/"
}

func escapeComment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// TraceContext adds the W3C traceparent and tracestate of the active span.
func TraceContext() CommentPlugin {
	return func(ctx context.Context, _ CommentInfo) map[string]string {
		return map[string]string{
			"traceparent": tracing.GetTraceParent(ctx),
			"tracestate":  tracing.GetTraceState(ctx),
		}
	}
}

// Application tags every statement with the application name.
func Application(name string) CommentPlugin {
	return func(context.Context, CommentInfo) map[string]string {
		return map[string]string{"application": name}
	}
}

type queryTagsKey struct{}

// WithQueryTags attaches tags that QueryTags adds to statements run with ctx.
func WithQueryTags(ctx context.Context, tags map[string]string) context.Context {
	merged := map[string]string{}
	if existing, ok := ctx.Value(queryTagsKey{}).(map[string]string); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range tags {
		merged[k] = v
	}
	return context.WithValue(ctx, queryTagsKey{}, merged)
}

// QueryTags adds the model and action, the request and tenant carried by ctx, and tags from WithQueryTags.
func QueryTags() CommentPlugin {
	return func(ctx context.Context, info CommentInfo) map[string]string {
		tags := map[string]string{
			"model":      info.Model,
			"action":     string(info.Action),
			"request_id": appctx.GetRequestID(ctx),
			"tenant_id":  appctx.GetTenantID(ctx),
			"route":      appctx.GetRoute(ctx),
		}
		if extra, ok := ctx.Value(queryTagsKey{}).(map[string]string); ok {
			for k, v := range extra {
				tags[k] = v
			}
		}
		return tags
	}
}
