package clover

import (
	"context"
	"encoding/json"
	"time"
)

type LogLevel string

const (
	LogQuery LogLevel = "query"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEmit selects where events of a level go.
type LogEmit string

const (
	// EmitStdout writes through the client's logger.
	EmitStdout LogEmit = "stdout"
	// EmitEvent delivers to listeners registered with On.
	EmitEvent LogEmit = "event"
)

type LogDefinition struct {
	Level LogLevel
	Emit  LogEmit
}

// LogEvent is delivered to On listeners. Query, Params and Duration are set for query events.
type LogEvent struct {
	Level     LogLevel
	Timestamp time.Time
	Target    string
	Message   string
	Query     string
	Params    string
	Duration  time.Duration
}

func parseLogDefinitions(defs []LogDefinition) (map[LogLevel][]LogEmit, error) {
	emitters := map[LogLevel][]LogEmit{}
	for _, d := range defs {
		switch d.Level {
		case LogQuery, LogInfo, LogWarn, LogError:
		default:
			return nil, validationError("Invalid log level %q. Expected one of query, info, warn, error.", d.Level)
		}
		emit := d.Emit
		if emit == "" {
			emit = EmitStdout
		}
		if emit != EmitStdout && emit != EmitEvent {
			return nil, validationError("Invalid log emit %q. Expected stdout or event.", d.Emit)
		}
		emitters[d.Level] = append(emitters[d.Level], emit)
	}
	return emitters, nil
}

// On registers fn for events of level. The level must be configured with EmitEvent.
func (db *DB) On(level LogLevel, fn func(LogEvent)) error {
	db.lmu.Lock()
	defer db.lmu.Unlock()

	emitsEvents := false
	for _, e := range db.emitters[level] {
		if e == EmitEvent {
			emitsEvents = true
		}
	}
	if !emitsEvents {
		return validationError("Log level %q is not configured with emit: event", level)
	}

	db.listeners[level] = append(db.listeners[level], fn)
	return nil
}

func (db *DB) emit(ctx context.Context, ev LogEvent) {
	db.lmu.RLock()
	emits := db.emitters[ev.Level]
	listeners := db.listeners[ev.Level]
	db.lmu.RUnlock()

	if len(emits) == 0 {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	for _, e := range emits {
		switch e {
		case EmitStdout:
			db.logStdout(ctx, ev)
		case EmitEvent:
			for _, fn := range listeners {
				fn(ev)
			}
		}
	}
}

func (db *DB) logStdout(ctx context.Context, ev LogEvent) {
	logger := db.logger.WithContext(ctx).WithFields(map[string]any{"target": ev.Target})
	switch ev.Level {
	case LogQuery:
		logger.WithFields(map[string]any{
			"params":      ev.Params,
			"duration_ms": ev.Duration.Milliseconds(),
		}).Infof("query: %s", ev.Query)
	case LogInfo:
		logger.Info(ev.Message)
	case LogWarn:
		logger.Warn(ev.Message)
	case LogError:
		logger.Error(ev.Message)
	}
}

func (db *DB) logQuery(ctx context.Context, query string, args []any, took time.Duration) {
	params, err := json.Marshal(args)
	if err != nil {
		params = []byte("[]")
	}
	db.emit(ctx, LogEvent{
		Level:    LogQuery,
		Target:   "clover:query",
		Query:    query,
		Params:   string(params),
		Duration: took,
	})
}
