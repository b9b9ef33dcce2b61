package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "crm.changes", getTestLogger())

	err := p.Publish(context.Background(),
		&ChangeEvent{EventType: "created", TenantID: "t1", Model: "Client", Action: "create", RecordID: "c1", Data: json.RawMessage(`{"company_name":"Acme"}`)},
		&ChangeEvent{EventType: "deleted", TenantID: "t1", Model: "Notification", Action: "deleteMany", Count: 4},
	)
	require.NoError(t, err)
	require.Len(t, w.messages, 2)

	first := w.messages[0]
	assert.Equal(t, "Client:c1", string(first.Key))
	assert.Equal(t, "Notification:t1", string(w.messages[1].Key))

	headers := map[string]string{}
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "created", headers["event_type"])
	assert.Equal(t, "Client", headers["model"])
	assert.Equal(t, schemaVersion, headers["schema_version"])

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal(first.Value, &decoded))
	assert.Equal(t, "c1", decoded.RecordID)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.JSONEq(t, `{"company_name":"Acme"}`, string(decoded.Data))
}

func TestPublish_Empty(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	p := NewProducerWithWriter(w, "crm.changes", getTestLogger())

	assert.NoError(t, p.Publish(context.Background()))
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "crm.changes", getTestLogger())

	err := p.Publish(context.Background(), &ChangeEvent{EventType: "updated", Model: "User", RecordID: "u1"})
	assert.EqualError(t, err, "leader not available")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
