package audit_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/audit"
	"github.com/Ramsey-B/clover/internal/testenv"
	"github.com/Ramsey-B/clover/pkg/clover"
	appctx "github.com/Ramsey-B/clover/pkg/context"
)

func newClient(t *testing.T) (*clover.DB, sqlmock.Sqlmock) {
	db, mock := testenv.NewMockDB(t)
	db.Use(audit.NewRecorder(db, testenv.Logger()).Middleware())
	return db, mock
}

func requestContext(userID uuid.UUID) context.Context {
	ctx := appctx.SetUserID(context.Background(), userID.String())
	ctx = appctx.SetRemoteIP(ctx, "10.0.0.1")
	return appctx.SetUserAgent(ctx, "curl/8.0")
}

func TestMiddleware_RecordsCreate(t *testing.T) {
	db, mock := newClient(t)
	id, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`INSERT INTO clients`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), id, tenantID, "Acme", clover.ClientStatusLead, ""))
	mock.ExpectQuery(`INSERT INTO audit_logs \(id, tenant_id, user_id, action, entity, entity_id, new_values, ip_address, user_agent\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, audit.ActionCreate, "Client", id.String(), sqlmock.AnyArg(), "10.0.0.1", "curl/8.0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	_, err := db.Client.Create(requestContext(userID), clover.CreateArgs[clover.Client]{
		Data: clover.ClientCreateInput{TenantID: tenantID, CompanyName: "Acme"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_SkipsUnauditedModels(t *testing.T) {
	db, mock := newClient(t)

	mock.ExpectExec(`UPDATE notifications SET read = \$1`).WillReturnResult(sqlmock.NewResult(0, 3))

	_, err := db.Notification.UpdateMany(context.Background(), clover.UpdateManyArgs[clover.Notification]{
		Data: clover.NotificationUpdateInput{Read: clover.Ptr(true)},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_AuditFailureOutsideTransaction(t *testing.T) {
	db, mock := newClient(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`INSERT INTO clients`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), uuid.New(), tenantID, "Acme", clover.ClientStatusLead, ""))
	mock.ExpectQuery(`INSERT INTO audit_logs`).WillReturnError(errors.New("disk full"))

	client, err := db.Client.Create(context.Background(), clover.CreateArgs[clover.Client]{
		Data: clover.ClientCreateInput{TenantID: tenantID, CompanyName: "Acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", client.CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_AuditFailureRollsBackTransaction(t *testing.T) {
	db, mock := newClient(t)
	tenantID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO clients`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), uuid.New(), tenantID, "Acme", clover.ClientStatusLead, ""))
	mock.ExpectQuery(`INSERT INTO audit_logs`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := db.Client.Create(ctx, clover.CreateArgs[clover.Client]{
			Data: clover.ClientCreateInput{TenantID: tenantID, CompanyName: "Acme"},
		})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to audit Client create")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_UpsertThatCreatesIsCreate(t *testing.T) {
	db, mock := newClient(t)
	tenantID, userID := uuid.New(), uuid.New()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT segments\.id FROM segments WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO segments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name"}).AddRow(id.String(), tenantID.String(), "VIP"))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, audit.ActionCreate, "Segment", id.String(), sqlmock.AnyArg(), "10.0.0.1", "curl/8.0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	_, err := db.Segment.Upsert(requestContext(userID), clover.UpsertArgs[clover.Segment]{
		Where:  clover.SegmentWhereUnique{TenantIDName: &clover.SegmentTenantIDName{TenantID: tenantID, Name: "VIP"}},
		Create: clover.SegmentCreateInput{TenantID: tenantID, Name: "VIP"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_GlobalOmitNeverAudited(t *testing.T) {
	db, mock := testenv.NewMockDB(t, func(o *clover.Options) {
		o.Omit = map[string][]string{"Client": {"custom_fields"}}
	})
	db.Use(audit.NewRecorder(db, testenv.Logger()).Middleware())
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`DELETE FROM clients WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "company_name", "status"}).
			AddRow(id.String(), tenantID.String(), "Acme", "LEAD"))
	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(sqlmock.AnyArg(), tenantID, audit.ActionDelete, "Client", id.String(), oldValuesWithout{"custom_fields"}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	_, err := db.Client.Delete(context.Background(), clover.DeleteArgs[clover.Client]{Where: clover.ClientWhereUnique{ID: id}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// oldValuesWithout matches a jsonb argument that has none of the given keys.
type oldValuesWithout []string

func (k oldValuesWithout) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return false
	}
	for _, key := range k {
		if _, ok := m[key]; ok {
			return false
		}
	}
	return len(m) > 0
}

func TestEntries(t *testing.T) {
	tenantID, userID := uuid.New(), uuid.New()
	ctx := appctx.SetTenantID(requestContext(userID), tenantID.String())

	t.Run("delete keeps old values", func(t *testing.T) {
		seg := &clover.Segment{ID: uuid.New(), TenantID: tenantID, Name: "VIP"}
		entries := audit.Entries(ctx, clover.QueryParams{Model: "Segment", Action: clover.ActionDelete}, seg)
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionDelete, entries[0].Action)
		assert.Nil(t, entries[0].NewValues)
		assert.Equal(t, "VIP", entries[0].OldValues["name"])
		assert.Equal(t, seg.ID.String(), *entries[0].EntityID)
		assert.Equal(t, userID, *entries[0].UserID)
	})

	t.Run("user secrets are redacted", func(t *testing.T) {
		user := &clover.User{ID: uuid.New(), TenantID: tenantID, Email: "a@b.co", PasswordHash: "secret"}
		entries := audit.Entries(ctx, clover.QueryParams{Model: "User", Action: clover.ActionUpdate}, user)
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionUpdate, entries[0].Action)
		assert.NotContains(t, entries[0].NewValues, "password_hash")
		assert.Equal(t, "a@b.co", entries[0].NewValues["email"])
	})

	t.Run("narrow select keeps only projected columns", func(t *testing.T) {
		seg := &clover.Segment{ID: uuid.New(), TenantID: tenantID}
		params := clover.QueryParams{Model: "Segment", Action: clover.ActionDelete, Args: clover.DeleteArgs[clover.Segment]{
			Select: []clover.ColumnRef[clover.Segment]{clover.SegmentFields.ID, clover.SegmentFields.TenantID},
		}}
		entries := audit.Entries(ctx, params, seg)
		require.Len(t, entries, 1)
		assert.Equal(t, map[string]any{"id": seg.ID.String(), "tenant_id": tenantID.String()}, entries[0].OldValues)
	})

	t.Run("omitted columns are dropped", func(t *testing.T) {
		client := &clover.Client{ID: uuid.New(), TenantID: tenantID, CompanyName: "Acme", Status: clover.ClientStatusLead}
		params := clover.QueryParams{Model: "Client", Action: clover.ActionUpdate, Args: clover.UpdateArgs[clover.Client]{
			Omit: []clover.ColumnRef[clover.Client]{clover.ClientFields.CompanyName},
		}}
		entries := audit.Entries(ctx, params, client)
		require.Len(t, entries, 1)
		assert.NotContains(t, entries[0].NewValues, "company_name")
		assert.Equal(t, "LEAD", entries[0].NewValues["status"])
	})

	t.Run("bulk count", func(t *testing.T) {
		entries := audit.Entries(ctx, clover.QueryParams{Model: "Client", Action: clover.ActionUpdateMany}, int64(4))
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].EntityID)
		assert.Equal(t, tenantID, entries[0].TenantID)
		assert.EqualValues(t, 4, entries[0].NewValues["count"])
	})

	t.Run("invalid ip is dropped", func(t *testing.T) {
		ctx := appctx.SetRemoteIP(ctx, "not-an-ip")
		entries := audit.Entries(ctx, clover.QueryParams{Model: "Client", Action: clover.ActionDeleteMany}, int64(1))
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].IPAddress)
	})
}
