package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/audit"
	"github.com/Ramsey-B/clover/internal/testenv"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

var segmentColumns = []string{"id", "tenant_id", "name", "description", "criteria", "created_at", "updated_at"}

func segmentRows(id, tenantID uuid.UUID, criteria string) *sqlmock.Rows {
	return sqlmock.NewRows(segmentColumns).
		AddRow(id.String(), tenantID.String(), "Big tech", nil, []byte(criteria), testenv.FixedTime, testenv.FixedTime)
}

func TestSegmentService_Create_InvalidCriteria(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewSegmentService(db, testenv.Logger())

	_, err := svc.Create(context.Background(), uuid.New(), clover.SegmentCreateInput{
		Name:     "Broken",
		Criteria: map[string]any{"favouriteColour": "blue"},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentService_Create(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewSegmentService(db, testenv.Logger())
	tenantID := uuid.New()

	mock.ExpectQuery(`INSERT INTO segments \(id, tenant_id, name, criteria\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, "Big tech", sqlmock.AnyArg()).
		WillReturnRows(segmentRows(uuid.New(), tenantID, `{"status":"ACTIVE"}`))

	segment, err := svc.Create(context.Background(), tenantID, clover.SegmentCreateInput{
		Name:     "Big tech",
		Criteria: map[string]any{"status": "ACTIVE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", segment.Criteria.Data["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// jsonKeys matches a jsonb argument holding exactly the given top-level keys.
type jsonKeys []string

func (k jsonKeys) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || len(m) != len(k) {
		return false
	}
	for _, key := range k {
		if _, ok := m[key]; !ok {
			return false
		}
	}
	return true
}

func TestSegmentService_Delete_AuditsWholeRecord(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	db.Use(audit.NewRecorder(db, testenv.Logger()).Middleware())
	svc := NewSegmentService(db, testenv.Logger())
	tenantID, segmentID := uuid.New(), uuid.New()

	mock.ExpectQuery(`DELETE FROM segments WHERE .* RETURNING id, tenant_id, name, description, criteria, created_at, updated_at`).
		WithArgs(segmentID, tenantID).
		WillReturnRows(segmentRows(segmentID, tenantID, `{"status":"LEAD"}`))
	mock.ExpectQuery(`INSERT INTO audit_logs \(id, tenant_id, action, entity, entity_id, old_values\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, "DELETE", "Segment", segmentID.String(),
			jsonKeys{"id", "tenant_id", "name", "criteria", "created_at", "updated_at"}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))

	require.NoError(t, svc.Delete(context.Background(), tenantID, segmentID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentService_Members_SQLOnly(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewSegmentService(db, testenv.Logger())
	tenantID, segmentID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM segments WHERE`).
		WillReturnRows(segmentRows(segmentID, tenantID, `{"status":"LEAD"}`))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS _count___all FROM clients WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all"}).AddRow(int64(7)))
	mock.ExpectQuery(`FROM clients WHERE .* ORDER BY clients\.company_name ASC.* LIMIT`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), uuid.New(), tenantID, "Acme", clover.ClientStatusLead, ""))

	page, err := svc.Members(context.Background(), tenantID, segmentID, utils.Page{Take: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	require.Len(t, page.Clients, 1)
	assert.Equal(t, "Acme", page.Clients[0].CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentService_Members_Residual(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewSegmentService(db, testenv.Logger())
	tenantID, segmentID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM segments WHERE`).
		WillReturnRows(segmentRows(segmentID, tenantID, `{"status":"ACTIVE","customFields.employees":{"$gte":50}}`))

	rows := sqlmock.NewRows(testenv.ClientColumns)
	testenv.ClientRow(rows, uuid.New(), tenantID, "Alpha", clover.ClientStatusActive, `{"employees":10}`)
	testenv.ClientRow(rows, uuid.New(), tenantID, "Beta", clover.ClientStatusActive, `{"employees":100}`)
	testenv.ClientRow(rows, uuid.New(), tenantID, "Gamma", clover.ClientStatusActive, `{"employees":60}`)
	mock.ExpectQuery(`FROM clients WHERE .*clients\.status = \$2.* ORDER BY clients\.company_name ASC`).
		WithArgs(tenantID, clover.ClientStatusActive).
		WillReturnRows(rows)

	page, err := svc.Members(context.Background(), tenantID, segmentID, utils.Page{Take: 1, Skip: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Clients, 1)
	assert.Equal(t, "Gamma", page.Clients[0].CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentService_Members_NotFound(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewSegmentService(db, testenv.Logger())

	mock.ExpectQuery(`FROM segments WHERE`).WillReturnRows(sqlmock.NewRows(segmentColumns))

	_, err := svc.Members(context.Background(), uuid.New(), uuid.New(), utils.Page{Take: 10})
	assert.True(t, clover.IsNotFound(err))
}

func TestWindow(t *testing.T) {
	rows := []int{1, 2, 3, 4}
	assert.Equal(t, []int{2, 3}, window(rows, 1, 2))
	assert.Equal(t, []int{3, 4}, window(rows, 2, 0))
	assert.Equal(t, []int{}, window(rows, 9, 2))
}

func assignedClientRows(id, tenantID, userID uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows(testenv.ClientColumns).AddRow(id.String(), tenantID.String(), userID.String(), "Acme", nil, nil, nil,
		string(clover.ClientStatusActive), []byte(`[]`), []byte(`{}`), testenv.FixedTime, testenv.FixedTime)
}

func expectTenantUser(mock sqlmock.Sqlmock, userID, tenantID uuid.UUID, found bool) {
	rows := sqlmock.NewRows([]string{"id"})
	if found {
		rows.AddRow(userID.String())
	}
	mock.ExpectQuery(`SELECT users\.id FROM users WHERE`).
		WithArgs(userID, tenantID).
		WillReturnRows(rows)
}

func TestClientService_Create_NotifiesAssignee(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	id, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectTenantUser(mock, userID, tenantID, true)
	mock.ExpectQuery(`INSERT INTO clients \(id, tenant_id, assigned_to_id, company_name\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, "Acme").
		WillReturnRows(assignedClientRows(id, tenantID, userID))
	mock.ExpectQuery(`INSERT INTO notifications \(id, tenant_id, user_id, type, title, message, read, data\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, clover.NotificationTypeAssignment, "New client assigned",
			"Acme has been assigned to you", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	client, err := svc.Create(context.Background(), tenantID, clover.ClientCreateInput{CompanyName: "Acme", AssignedToID: &userID})
	require.NoError(t, err)
	assert.Equal(t, id, client.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_Create_AssigneeOfOtherTenant(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectTenantUser(mock, userID, tenantID, false)
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), tenantID, clover.ClientCreateInput{CompanyName: "Acme", AssignedToID: &userID})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_Update_AssigneeOfOtherTenant(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectTenantUser(mock, userID, tenantID, false)
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), tenantID, uuid.New(), clover.ClientUpdateInput{AssignedToID: clover.NullOf(userID)})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_Update_Unassign(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT clients\.id, clients\.assigned_to_id FROM clients WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assigned_to_id"}).AddRow(id.String(), uuid.NewString()))
	mock.ExpectQuery(`UPDATE clients SET assigned_to_id = \$1`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), id, tenantID, "Acme", clover.ClientStatusActive, ""))
	mock.ExpectCommit()

	client, err := svc.Update(context.Background(), tenantID, id, clover.ClientUpdateInput{AssignedToID: &sql.Null[uuid.UUID]{}})
	require.NoError(t, err)
	assert.Nil(t, client.AssignedToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_Update_NotifiesNewAssignee(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	id, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectTenantUser(mock, userID, tenantID, true)
	mock.ExpectQuery(`SELECT clients\.id, clients\.assigned_to_id FROM clients WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assigned_to_id"}).AddRow(id.String(), nil))
	mock.ExpectQuery(`UPDATE clients SET assigned_to_id = \$1, updated_at = NOW\(\) WHERE`).
		WillReturnRows(assignedClientRows(id, tenantID, userID))
	mock.ExpectQuery(`INSERT INTO notifications \(id, tenant_id, user_id, type, title, message, read, data\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, userID, clover.NotificationTypeAssignment, "New client assigned",
			"Acme has been assigned to you", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	client, err := svc.Update(context.Background(), tenantID, id, clover.ClientUpdateInput{AssignedToID: clover.NullOf(userID)})
	require.NoError(t, err)
	assert.Equal(t, userID, *client.AssignedToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_Update_SameAssignee(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	id, tenantID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	expectTenantUser(mock, userID, tenantID, true)
	mock.ExpectQuery(`SELECT clients\.id, clients\.assigned_to_id FROM clients WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assigned_to_id"}).AddRow(id.String(), userID.String()))
	mock.ExpectQuery(`UPDATE clients SET`).
		WillReturnRows(assignedClientRows(id, tenantID, userID))
	mock.ExpectCommit()

	_, err := svc.Update(context.Background(), tenantID, id, clover.ClientUpdateInput{AssignedToID: clover.NullOf(userID)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientService_List(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewClientService(db, testenv.Logger())
	tenantID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM clients WHERE .*clients\.status IN \(\$2\).*ILIKE.* ORDER BY clients\.created_at DESC`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), uuid.New(), tenantID, "Acme", clover.ClientStatusActive, ""))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS _count___all FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all"}).AddRow(int64(12)))
	mock.ExpectCommit()

	clients, total, err := svc.List(context.Background(), tenantID, ClientFilter{
		Status: []clover.ClientStatus{clover.ClientStatusActive},
		Search: "acme",
	}, utils.Page{Take: 1})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Equal(t, int64(12), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationService_MarkRead_OtherUser(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewNotificationService(db, testenv.Logger())

	mock.ExpectQuery(`UPDATE notifications SET read = \$1 WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.MarkRead(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.True(t, clover.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	db, mock := testenv.NewMockDB(t)
	svc := NewNotificationService(db, testenv.Logger())
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE notifications SET read = \$1 WHERE .*notifications\.read = \$4`).
		WithArgs(true, tenantID, userID, false).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := svc.MarkAllRead(context.Background(), tenantID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
