package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	db, mock := newMockDB(t)
	clientID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS _count___all, AVG\(interactions\.duration_minutes\)::float8 AS _avg__duration_minutes, MAX\(interactions\.occurred_at\) AS _max__occurred_at FROM interactions WHERE interactions\.client_id = \$1`).
		WithArgs(clientID).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all", "_avg__duration_minutes", "_max__occurred_at"}).
			AddRow(int64(4), 22.5, fixedTime))

	res, err := db.Interaction.Aggregate(context.Background(), AggregateArgs[Interaction]{
		Aggregations: Aggregations[Interaction]{
			CountAll: true,
			Avg:      []ColumnRef[Interaction]{InteractionFields.DurationMinutes},
			Max:      []ColumnRef[Interaction]{InteractionFields.OccurredAt},
		},
		Where: InteractionFields.ClientID.Equals(clientID),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.CountAll())
	require.NotNil(t, res.Avg["duration_minutes"])
	assert.InDelta(t, 22.5, *res.Avg["duration_minutes"], 0.001)
	assert.Equal(t, fixedTime, res.Max["occurred_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregate_NullAverage(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT AVG\(interactions\.duration_minutes\)::float8 AS _avg__duration_minutes FROM interactions`).
		WillReturnRows(sqlmock.NewRows([]string{"_avg__duration_minutes"}).AddRow(nil))

	res, err := db.Interaction.Aggregate(context.Background(), AggregateArgs[Interaction]{
		Aggregations: Aggregations[Interaction]{Avg: []ColumnRef[Interaction]{InteractionFields.DurationMinutes}},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Avg["duration_minutes"])
	assert.Zero(t, res.CountAll())
}

func TestAggregate_Window(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT SUM\(sub\.duration_minutes\) AS _sum__duration_minutes FROM \(SELECT interactions\.duration_minutes FROM interactions ORDER BY interactions\.occurred_at DESC LIMIT .*\) AS sub`).
		WillReturnRows(sqlmock.NewRows([]string{"_sum__duration_minutes"}).AddRow(int64(90)))

	res, err := db.Interaction.Aggregate(context.Background(), AggregateArgs[Interaction]{
		Aggregations: Aggregations[Interaction]{Sum: []ColumnRef[Interaction]{InteractionFields.DurationMinutes}},
		OrderBy:      []OrderBy[Interaction]{InteractionFields.OccurredAt.Desc()},
		Take:         10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(90), res.Sum["duration_minutes"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregate_Validation(t *testing.T) {
	db, _ := newMockDB(t)
	ctx := context.Background()
	var verr *ValidationError

	_, err := db.Interaction.Aggregate(ctx, AggregateArgs[Interaction]{
		Aggregations: Aggregations[Interaction]{Avg: []ColumnRef[Interaction]{InteractionFields.Subject}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "not numeric")

	_, err = db.Interaction.Aggregate(ctx, AggregateArgs[Interaction]{})
	require.ErrorAs(t, err, &verr)
}

func TestGroupBy(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT interactions\.type, COUNT\(\*\) AS _count___all, AVG\(interactions\.duration_minutes\)::float8 AS _avg__duration_minutes FROM interactions GROUP BY interactions\.type HAVING COUNT\(\*\) > \$1 ORDER BY COUNT\(\*\) DESC LIMIT \$2`).
		WithArgs(1, 5).
		WillReturnRows(sqlmock.NewRows([]string{"type", "_count___all", "_avg__duration_minutes"}).
			AddRow("CALL", int64(7), 12.0).
			AddRow("MEETING", int64(3), 45.0))

	groups, err := db.Interaction.GroupBy(context.Background(), GroupByArgs[Interaction]{
		By: []ColumnRef[Interaction]{InteractionFields.Type},
		Aggregations: Aggregations[Interaction]{
			CountAll: true,
			Avg:      []ColumnRef[Interaction]{InteractionFields.DurationMinutes},
		},
		Having:  CountAll[Interaction]().Gt(1),
		OrderBy: []OrderBy[Interaction]{CountAll[Interaction]().Desc()},
		Take:    5,
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "CALL", groups[0].Fields["type"])
	assert.Equal(t, int64(7), groups[0].CountAll())
	assert.InDelta(t, 45.0, *groups[1].Avg["duration_minutes"], 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupBy_Validation(t *testing.T) {
	db, _ := newMockDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args GroupByArgs[Client]
		want string
	}{
		{
			name: "missing by",
			args: GroupByArgs[Client]{},
			want: "Argument `by` is missing.",
		},
		{
			name: "order by outside by",
			args: GroupByArgs[Client]{
				By:      []ColumnRef[Client]{ClientFields.Status},
				OrderBy: []OrderBy[Client]{ClientFields.CompanyName.Asc()},
			},
			want: "Every field used for `orderBy` must be included",
		},
		{
			name: "take without order",
			args: GroupByArgs[Client]{By: []ColumnRef[Client]{ClientFields.Status}, Take: 2},
			want: "Argument `orderBy` is required",
		},
		{
			name: "sum over text",
			args: GroupByArgs[Client]{
				By:           []ColumnRef[Client]{ClientFields.Status},
				Aggregations: Aggregations[Client]{Sum: []ColumnRef[Client]{ClientFields.CompanyName}},
			},
			want: "not numeric",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Client.GroupBy(ctx, tt.args)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, tt.want)
		})
	}
}
