package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/internal/testenv"
	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/middleware"
)

func newServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	db, mock := testenv.NewMockDB(t)
	logger := testenv.Logger()

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())

	api := e.Group("/api/v1")
	NewTenantHandler(db, logger).RegisterRoutes(api)
	NewClientHandler(services.NewClientService(db, logger)).RegisterRoutes(api)
	NewInteractionHandler(db).RegisterRoutes(api)
	NewSegmentHandler(services.NewSegmentService(db, logger)).RegisterRoutes(api)
	NewNotificationHandler(services.NewNotificationService(db, logger)).RegisterRoutes(api)
	NewAuditLogHandler(db).RegisterRoutes(api)
	return e, mock
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func tenantHeaders(tenantID uuid.UUID) map[string]string {
	return map[string]string{middleware.HeaderTenantID: tenantID.String()}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestClientHandler_Create(t *testing.T) {
	e, mock := newServer(t)
	tenantID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO clients \(id, tenant_id, company_name, email\) VALUES`).
		WithArgs(sqlmock.AnyArg(), tenantID, "Acme", "ops@acme.io").
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), uuid.New(), tenantID, "Acme", clover.ClientStatusLead, ""))
	mock.ExpectCommit()

	rec := do(e, http.MethodPost, "/api/v1/clients", `{"company_name":"Acme","email":"ops@acme.io"}`, tenantHeaders(tenantID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	client := decode[clover.Client](t, rec)
	assert.Equal(t, "Acme", client.CompanyName)
	assert.Equal(t, clover.ClientStatusLead, client.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientHandler_Create_Invalid(t *testing.T) {
	e, mock := newServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing company", `{"email":"ops@acme.io"}`},
		{"bad email", `{"company_name":"Acme","email":"nope"}`},
		{"bad status", `{"company_name":"Acme","status":"HOT"}`},
		{"bad assignee", `{"company_name":"Acme","assigned_to_id":"42"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/v1/clients", tt.body, tenantHeaders(uuid.New()))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientHandler_RequiresTenant(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodGet, "/api/v1/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientHandler_Get_NotFound(t *testing.T) {
	e, mock := newServer(t)

	mock.ExpectQuery(`FROM clients WHERE`).WillReturnRows(sqlmock.NewRows(testenv.ClientColumns))

	rec := do(e, http.MethodGet, "/api/v1/clients/"+uuid.NewString(), "", tenantHeaders(uuid.New()))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decode[middleware.ErrorResponse](t, rec)
	assert.Equal(t, clover.CodeRecordNotFound, body.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientHandler_Get_WithInteractions(t *testing.T) {
	e, mock := newServer(t)
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM clients WHERE`).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), id, tenantID, "Acme", clover.ClientStatusActive, ""))
	mock.ExpectQuery(`FROM interactions WHERE .*interactions\.client_id IN \(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "subject"}).AddRow(uuid.NewString(), id.String(), "Kickoff"))

	rec := do(e, http.MethodGet, "/api/v1/clients/"+id.String()+"?interactions=3", "", tenantHeaders(tenantID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	client := decode[clover.Client](t, rec)
	require.Len(t, client.Interactions, 1)
	assert.Equal(t, "Kickoff", client.Interactions[0].Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientHandler_List_InvalidStatus(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodGet, "/api/v1/clients?status=ACTIVE,HOT", "", tenantHeaders(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientHandler_Delete(t *testing.T) {
	e, mock := newServer(t)
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`DELETE FROM clients WHERE \(clients\.id = \$1 AND clients\.tenant_id = \$2\) RETURNING`).
		WithArgs(id, tenantID).
		WillReturnRows(testenv.ClientRow(sqlmock.NewRows(testenv.ClientColumns), id, tenantID, "Acme", clover.ClientStatusActive, ""))

	rec := do(e, http.MethodDelete, "/api/v1/clients/"+id.String(), "", tenantHeaders(tenantID))
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionHandler_Create_ClientOfOtherTenant(t *testing.T) {
	e, mock := newServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT clients\.id FROM clients WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	headers := tenantHeaders(uuid.New())
	headers[middleware.HeaderUserID] = uuid.NewString()
	rec := do(e, http.MethodPost, "/api/v1/clients/"+uuid.NewString()+"/interactions",
		`{"type":"CALL","subject":"Intro call","duration_minutes":15}`, headers)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionHandler_Create_AuthorOfOtherTenant(t *testing.T) {
	e, mock := newServer(t)
	tenantID, clientID, userID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT clients\.id FROM clients WHERE`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(clientID.String()))
	mock.ExpectQuery(`SELECT users\.id FROM users WHERE`).
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	headers := tenantHeaders(tenantID)
	headers[middleware.HeaderUserID] = userID.String()
	rec := do(e, http.MethodPost, "/api/v1/clients/"+clientID.String()+"/interactions",
		`{"type":"CALL","subject":"Intro call"}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "user does not belong to tenant")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionHandler_Create_RequiresUser(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodPost, "/api/v1/clients/"+uuid.NewString()+"/interactions",
		`{"type":"CALL","subject":"Intro call"}`, tenantHeaders(uuid.New()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSegmentHandler_Create_InvalidCriteria(t *testing.T) {
	e, mock := newServer(t)

	rec := do(e, http.MethodPost, "/api/v1/segments",
		`{"name":"Broken","criteria":{"status":{"$between":[1,2]}}}`, tenantHeaders(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid criteria")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	e, mock := newServer(t)
	tenantID, userID := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE notifications SET read = \$1 WHERE`).
		WithArgs(true, tenantID, userID, false).
		WillReturnResult(sqlmock.NewResult(0, 2))

	headers := tenantHeaders(tenantID)
	headers[middleware.HeaderUserID] = userID.String()
	rec := do(e, http.MethodPost, "/api/v1/notifications/read-all", "", headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int64{"updated": 2}, decode[map[string]int64](t, rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogHandler_Stats(t *testing.T) {
	e, mock := newServer(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT audit_logs\.entity, audit_logs\.action, COUNT\(\*\) AS _count___all, MAX\(audit_logs\.created_at\) AS _max__created_at FROM audit_logs WHERE .* GROUP BY audit_logs\.entity, audit_logs\.action ORDER BY COUNT\(\*\) DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"entity", "action", "_count___all", "_max__created_at"}).
			AddRow("Client", "UPDATE", int64(9), testenv.FixedTime).
			AddRow("Segment", "CREATE", int64(2), testenv.FixedTime))

	rec := do(e, http.MethodGet, "/api/v1/audit-logs/stats", "", tenantHeaders(tenantID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stats := decode[[]AuditStat](t, rec)
	require.Len(t, stats, 2)
	assert.Equal(t, AuditStat{Entity: "Client", Action: "UPDATE", Count: 9, Last: testenv.FixedTime}, stats[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLogHandler_List_BadSince(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodGet, "/api/v1/audit-logs?since=yesterday", "", tenantHeaders(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantHandler_Create_Conflict(t *testing.T) {
	e, mock := newServer(t)

	mock.ExpectQuery(`INSERT INTO tenants`).WillReturnError(testenv.UniqueViolation("tenants_slug_key"))

	rec := do(e, http.MethodPost, "/api/v1/tenants", `{"name":"Acme","slug":"acme"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, clover.CodeUniqueConstraint, decode[middleware.ErrorResponse](t, rec).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
