package clover

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUnique(t *testing.T) {
	db, mock := newMockDB(t)
	id, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT clients\.id, clients\.tenant_id, .* FROM clients WHERE clients\.id = \$1 LIMIT`).
		WillReturnRows(clientRow(sqlmock.NewRows(clientColumns), id, tenantID, "Acme", ClientStatusActive))

	client, err := db.Client.FindUnique(context.Background(), FindUniqueArgs[Client]{Where: ClientWhereUnique{ID: id}})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, id, client.ID)
	assert.Equal(t, "Acme", client.CompanyName)
	assert.Equal(t, []string{"vip"}, client.Tags.Data)
	assert.Nil(t, client.AssignedToID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnique_Miss(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM clients WHERE clients\.id = \$1`).WillReturnRows(sqlmock.NewRows(clientColumns))
	client, err := db.Client.FindUnique(context.Background(), FindUniqueArgs[Client]{Where: ClientWhereUnique{ID: id}})
	require.NoError(t, err)
	assert.Nil(t, client)

	mock.ExpectQuery(`FROM clients WHERE clients\.id = \$1`).WillReturnRows(sqlmock.NewRows(clientColumns))
	_, err = db.Client.FindUniqueOrThrow(context.Background(), FindUniqueArgs[Client]{Where: ClientWhereUnique{ID: id}})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var known *KnownRequestError
	require.ErrorAs(t, err, &known)
	assert.Equal(t, "Client", known.Meta["modelName"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnique_RequiresWhere(t *testing.T) {
	db, _ := newMockDB(t)

	_, err := db.Client.FindUnique(context.Background(), FindUniqueArgs[Client]{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "ClientWhereUniqueInput is needed")

	_, err = db.Client.FindUnique(context.Background(), FindUniqueArgs[Client]{Where: ClientWhereUnique{}})
	require.ErrorAs(t, err, &verr)
}

func TestFindMany_Projection(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT clients\.id, clients\.company_name FROM clients WHERE clients\.status = \$1 ORDER BY clients\.company_name ASC`).
		WithArgs(ClientStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_name"}).
			AddRow(uuid.NewString(), "Acme").
			AddRow(uuid.NewString(), "Beta"))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		Where:   ClientFields.Status.Equals(ClientStatusActive),
		OrderBy: []OrderBy[Client]{ClientFields.CompanyName.Asc()},
		Select:  []ColumnRef[Client]{ClientFields.ID, ClientFields.CompanyName},
	})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Beta", clients[1].CompanyName)
	assert.Empty(t, clients[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_ValidationErrors(t *testing.T) {
	db, _ := newMockDB(t)
	ctx := context.Background()
	var verr *ValidationError

	_, err := db.Client.FindMany(ctx, FindManyArgs[Client]{
		Select: []ColumnRef[Client]{ClientFields.ID},
		Omit:   []ColumnRef[Client]{ClientFields.Email},
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "`select` or `omit`")

	_, err = db.Client.FindMany(ctx, FindManyArgs[Client]{
		Select:  []ColumnRef[Client]{ClientFields.ID},
		Include: []Include[Client]{ClientRelations.Interactions.Include()},
	})
	require.ErrorAs(t, err, &verr)

	_, err = db.Client.FindMany(ctx, FindManyArgs[Client]{Skip: -1})
	require.ErrorAs(t, err, &verr)

	_, err = db.Client.FindMany(ctx, FindManyArgs[Client]{OrderBy: []OrderBy[Client]{CountAll[Client]().Desc()}})
	require.ErrorAs(t, err, &verr)
}

func TestFindMany_GlobalOmit(t *testing.T) {
	db, mock := newMockDB(t, func(o *Options) {
		o.Omit = map[string][]string{"User": {"password_hash"}}
	})

	mock.ExpectQuery(`SELECT users\.id, users\.tenant_id, users\.email, users\.first_name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(uuid.NewString(), "a@acme.io"))

	users, err := db.User.FindMany(context.Background(), FindManyArgs[User]{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_RejectsUnknownOmit(t *testing.T) {
	_, err := New(getTestLogger(), Options{Adapter: FromDB(nil), Omit: map[string][]string{"User": {"nope"}}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = New(getTestLogger(), Options{})
	require.ErrorAs(t, err, &verr)
}

func TestFindMany_TenantIsolation(t *testing.T) {
	db, mock := newMockDB(t, func(o *Options) { o.TenantIsolation = true })
	tenantID := uuid.New()

	mock.ExpectQuery(`FROM clients WHERE clients\.tenant_id = \$1 AND clients\.status = \$2`).
		WithArgs(tenantID, ClientStatusLead).
		WillReturnRows(sqlmock.NewRows(clientColumns))

	clients, err := db.Client.FindMany(tenantContext(tenantID), FindManyArgs[Client]{
		Where: ClientFields.Status.Equals(ClientStatusLead),
	})
	require.NoError(t, err)
	assert.Empty(t, clients)
	assert.NotNil(t, clients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_Backwards(t *testing.T) {
	db, mock := newMockDB(t)
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`ORDER BY clients\.created_at ASC, clients\.id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		OrderBy: []OrderBy[Client]{ClientFields.CreatedAt.Desc()},
		Take:    -2,
	})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, second, clients[0].ID)
	assert.Equal(t, first, clients[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_Cursor(t *testing.T) {
	db, mock := newMockDB(t)
	cursorID := uuid.New()

	mock.ExpectQuery(`SELECT clients\.company_name, clients\.id FROM clients WHERE clients\.id = \$1 LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"company_name", "id"}).AddRow("Beta", cursorID.String()))
	mock.ExpectQuery(`FROM clients WHERE \(\(clients\.company_name > \$1 OR clients\.company_name IS NULL\) OR \(clients\.company_name = \$2 AND \(clients\.id >= \$3 OR clients\.id IS NULL\)\)\) ORDER BY clients\.company_name ASC, clients\.id ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_name"}).AddRow(cursorID.String(), "Beta"))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		OrderBy: []OrderBy[Client]{ClientFields.CompanyName.Asc()},
		Cursor:  ClientWhereUnique{ID: cursorID},
		Take:    2,
	})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, cursorID, clients[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_MissingCursor(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT clients\.id FROM clients WHERE clients\.id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		Cursor: ClientWhereUnique{ID: uuid.New()},
		Take:   10,
	})
	require.NoError(t, err)
	assert.Empty(t, clients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_Distinct(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT clients\.id, clients\.status FROM clients ORDER BY clients\.created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(uuid.NewString(), "LEAD").
			AddRow(uuid.NewString(), "LEAD").
			AddRow(uuid.NewString(), "ACTIVE"))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		Select:   []ColumnRef[Client]{ClientFields.ID},
		Distinct: []ColumnRef[Client]{ClientFields.Status},
		OrderBy:  []OrderBy[Client]{ClientFields.CreatedAt.Asc()},
	})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, ClientStatusLead, clients[0].Status)
	assert.Equal(t, ClientStatusActive, clients[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_IncludeList(t *testing.T) {
	db, mock := newMockDB(t)
	tenantID := uuid.New()
	acme, beta := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM clients ORDER BY clients\.company_name ASC`).
		WillReturnRows(clientRow(clientRow(sqlmock.NewRows(clientColumns), acme, tenantID, "Acme", ClientStatusActive),
			beta, tenantID, "Beta", ClientStatusLead))
	mock.ExpectQuery(`SELECT interactions\.id, interactions\.subject, interactions\.client_id FROM interactions WHERE interactions\.client_id IN \(\$1, \$2\) ORDER BY interactions\.occurred_at DESC`).
		WithArgs(acme, beta).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "client_id"}).
			AddRow(uuid.NewString(), "Kickoff", acme.String()).
			AddRow(uuid.NewString(), "Demo", acme.String()))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		OrderBy: []OrderBy[Client]{ClientFields.CompanyName.Asc()},
		Include: []Include[Client]{ClientRelations.Interactions.Include(IncludeArgs[Interaction]{
			OrderBy: []OrderBy[Interaction]{InteractionFields.OccurredAt.Desc()},
			Select:  []ColumnRef[Interaction]{InteractionFields.ID, InteractionFields.Subject},
		})},
	})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.Len(t, clients[0].Interactions, 2)
	assert.Equal(t, "Kickoff", clients[0].Interactions[0].Subject)
	assert.NotNil(t, clients[1].Interactions)
	assert.Empty(t, clients[1].Interactions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindMany_IncludeOne(t *testing.T) {
	db, mock := newMockDB(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT clients\.id, clients\.assigned_to_id FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assigned_to_id"}).
			AddRow(uuid.NewString(), userID.String()).
			AddRow(uuid.NewString(), nil))
	mock.ExpectQuery(`FROM users WHERE users\.id IN \(\$1\)`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(userID.String(), "owner@acme.io"))

	clients, err := db.Client.FindMany(context.Background(), FindManyArgs[Client]{
		Omit: []ColumnRef[Client]{ClientFields.TenantID, ClientFields.CompanyName, ClientFields.ContactName,
			ClientFields.Email, ClientFields.Phone, ClientFields.Status, ClientFields.Tags, ClientFields.CustomFields,
			ClientFields.CreatedAt, ClientFields.UpdatedAt, ClientFields.AssignedToID},
		Include: []Include[Client]{ClientRelations.AssignedTo.Include()},
	})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.NotNil(t, clients[0].AssignedTo)
	assert.Equal(t, "owner@acme.io", clients[0].AssignedTo.Email)
	assert.Nil(t, clients[1].AssignedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS _count___all FROM clients WHERE clients\.status = \$1`).
		WithArgs(ClientStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all"}).AddRow(int64(42)))

	n, err := db.Client.Count(context.Background(), CountArgs[Client]{Where: ClientFields.Status.Equals(ClientStatusActive)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountFields_Window(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS _count___all, COUNT\(sub\.email\) AS _count__email FROM \(SELECT clients\.email FROM clients ORDER BY clients\.company_name ASC LIMIT .*\) AS sub`).
		WillReturnRows(sqlmock.NewRows([]string{"_count___all", "_count__email"}).AddRow(int64(10), int64(7)))

	counts, err := db.Client.CountFields(context.Background(), CountArgs[Client]{
		OrderBy: []OrderBy[Client]{ClientFields.CompanyName.Asc()},
		Take:    10,
		Select:  []ColumnRef[Client]{ClientFields.Email},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"_all": 10, "email": 7}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
