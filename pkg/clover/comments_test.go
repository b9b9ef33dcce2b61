package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

func TestFormatComment(t *testing.T) {
	got := formatComment(map[string]string{"route": "/clients/{id}", "application": "crm api", "note": "it's"})
	assert.Equal(t, `/*application='crm%20api',note='it%27s',route='%2Fclients%2F%7Bid%7D'*/`, got)
}

func TestCommentPlugins(t *testing.T) {
	db, mock := newMockDB(t, func(o *Options) {
		o.Comments = []CommentPlugin{Application("crm"), QueryTags()}
	})
	ctx := appctx.SetRequestID(context.Background(), "req-1")
	ctx = WithQueryTags(ctx, map[string]string{"job": "nightly"})

	mock.ExpectQuery(`FROM clients /\*action='count',application='crm',job='nightly',model='Client',request_id='req-1'\*/`).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all"}).AddRow(int64(0)))

	_, err := db.Client.Count(ctx, CountArgs[Client]{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentPlugins_LaterOverrides(t *testing.T) {
	db, mock := newMockDB(t, func(o *Options) {
		o.Comments = []CommentPlugin{Application("first"), Application("second")}
	})

	mock.ExpectExec(`^DELETE FROM segments /\*application='second'\*/$`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := db.Segment.DeleteMany(context.Background(), DeleteManyArgs[Segment]{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceContext_NoSpan(t *testing.T) {
	tags := TraceContext()(context.Background(), CommentInfo{})
	assert.Empty(t, tags["traceparent"])
}
