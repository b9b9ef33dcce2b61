package clover

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name     string
		pred     Predicate[Client]
		expected string
		args     []any
	}{
		{
			name:     "equals",
			pred:     ClientFields.Status.Equals(ClientStatusActive),
			expected: "WHERE clients.status = $1",
			args:     []any{ClientStatusActive},
		},
		{
			name:     "and",
			pred:     And(ClientFields.Status.Equals(ClientStatusLead), ClientFields.CompanyName.StartsWith("Ac")),
			expected: "WHERE (clients.status = $1 AND clients.company_name LIKE $2)",
			args:     []any{ClientStatusLead, "Ac%"},
		},
		{
			name:     "or",
			pred:     Or(ClientFields.Email.IsNull(), ClientFields.Phone.IsNull()),
			expected: "WHERE (clients.email IS NULL OR clients.phone IS NULL)",
		},
		{
			name:     "not",
			pred:     Not(ClientFields.Status.Equals(ClientStatusChurned)),
			expected: "WHERE NOT (clients.status = $1)",
			args:     []any{ClientStatusChurned},
		},
		{
			name:     "empty and matches everything",
			pred:     And[Client](nil, nil),
			expected: "WHERE TRUE",
		},
		{
			name:     "empty or matches nothing",
			pred:     Or[Client](),
			expected: "WHERE FALSE",
		},
		{
			name:     "empty in",
			pred:     ClientFields.Status.In(),
			expected: "WHERE FALSE",
		},
		{
			name:     "empty not in",
			pred:     ClientFields.Status.NotIn(),
			expected: "WHERE TRUE",
		},
		{
			name:     "in",
			pred:     ClientFields.Status.In(ClientStatusLead, ClientStatusProspect),
			expected: "WHERE clients.status IN ($1, $2)",
			args:     []any{ClientStatusLead, ClientStatusProspect},
		},
		{
			name:     "range",
			pred:     And(ClientFields.CreatedAt.Gte(fixedTime), ClientFields.CreatedAt.Lt(fixedTime.Add(time.Hour))),
			expected: "WHERE (clients.created_at >= $1 AND clients.created_at < $2)",
			args:     []any{fixedTime, fixedTime.Add(time.Hour)},
		},
		{
			name:     "contains escapes wildcards",
			pred:     ClientFields.CompanyName.Contains("50%_off"),
			expected: "WHERE clients.company_name LIKE $1",
			args:     []any{`%50\%\_off%`},
		},
		{
			name:     "case insensitive",
			pred:     ClientFields.Email.EndsWithFold("@ACME.COM"),
			expected: "WHERE clients.email ILIKE $1",
			args:     []any{"%@ACME.COM"},
		},
		{
			name:     "json contains",
			pred:     ClientFields.Tags.ArrayContains("vip"),
			expected: "WHERE clients.tags @> $1::jsonb",
			args:     []any{`["vip"]`},
		},
		{
			name:     "json has key",
			pred:     ClientFields.CustomFields.HasKey("industry"),
			expected: "WHERE jsonb_exists(clients.custom_fields, $1)",
			args:     []any{"industry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := compileWhere(tt.pred, clientsTable)
			assert.Contains(t, query, tt.expected)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestPredicates_JSONPath(t *testing.T) {
	query, args := compileWhere(ClientFields.CustomFields.PathEquals([]string{"industry"}, "saas"), clientsTable)
	assert.Contains(t, query, "WHERE clients.custom_fields #> $1::text[] = $2::jsonb")
	assert.Len(t, args, 2)
	assert.Equal(t, `"saas"`, args[1])

	query, _ = compileWhere(ClientFields.CustomFields.PathCompare([]string{"seats"}, ">=", 10), clientsTable)
	assert.Contains(t, query, "(clients.custom_fields #>> $1::text[])::numeric >= $2")

	query, _ = compileWhere(ClientFields.CustomFields.PathCompare([]string{"seats"}, "; DROP", 10), clientsTable)
	assert.Contains(t, query, "::numeric = $2")

	query, args = compileWhere(ClientFields.CustomFields.PathIn([]string{"tier"}, "gold", "silver"), clientsTable)
	assert.Contains(t, query, "(clients.custom_fields #> $1::text[] = $2::jsonb OR clients.custom_fields #> $3::text[] = $4::jsonb)")
	assert.Len(t, args, 4)
}

func TestRelationFilters(t *testing.T) {
	t.Run("some", func(t *testing.T) {
		query, args := compileWhere(ClientRelations.Interactions.Some(InteractionFields.Type.Equals(InteractionTypeCall)), clientsTable)
		assert.Contains(t, query, "WHERE EXISTS (SELECT 1 FROM interactions AS r1 WHERE (r1.client_id = clients.id AND r1.type = $1))")
		assert.Equal(t, []any{InteractionTypeCall}, args)
	})

	t.Run("every negates the child filter", func(t *testing.T) {
		query, _ := compileWhere(ClientRelations.Interactions.Every(InteractionFields.Type.Equals(InteractionTypeCall)), clientsTable)
		assert.Contains(t, query, "WHERE NOT EXISTS (SELECT 1 FROM interactions AS r1 WHERE (r1.client_id = clients.id AND NOT (r1.type = $1)))")
	})

	t.Run("every without filter", func(t *testing.T) {
		query, _ := compileWhere(ClientRelations.Interactions.Every(nil), clientsTable)
		assert.Contains(t, query, "WHERE TRUE")
	})

	t.Run("none", func(t *testing.T) {
		query, _ := compileWhere(UserRelations.AssignedClients.None(nil), usersTable)
		assert.Contains(t, query, "WHERE NOT EXISTS (SELECT 1 FROM clients AS r1 WHERE r1.assigned_to_id = users.id)")
	})

	t.Run("is", func(t *testing.T) {
		query, _ := compileWhere(ClientRelations.AssignedTo.Is(UserFields.Role.Equals(UserRoleManager)), clientsTable)
		assert.Contains(t, query, "WHERE EXISTS (SELECT 1 FROM users AS r1 WHERE (r1.id = clients.assigned_to_id AND r1.role = $1))")
	})

	t.Run("nested relations use distinct aliases", func(t *testing.T) {
		pred := TenantRelations.Clients.Some(ClientRelations.Interactions.Some(InteractionFields.DurationMinutes.Gt(30)))
		query, _ := compileWhere(pred, tenantsTable)
		assert.Contains(t, query, "FROM clients AS r1 WHERE (r1.tenant_id = tenants.id AND EXISTS (SELECT 1 FROM interactions AS r2 WHERE (r2.client_id = r1.id AND r2.duration_minutes > $1)))")
	})

	t.Run("refresh tokens scope through their user", func(t *testing.T) {
		tenantID := uuid.New()
		query, args := compileWhere(refreshTokenModel.scope(tenantID), refreshTokensTable)
		assert.Contains(t, query, "WHERE EXISTS (SELECT 1 FROM users AS r1 WHERE (r1.id = refresh_tokens.user_id AND r1.tenant_id = $1))")
		assert.Equal(t, []any{tenantID}, args)
	})
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "clients.company_name ASC", ClientFields.CompanyName.Asc().clause(clientsTable))
	assert.Equal(t, "clients.created_at DESC NULLS LAST", ClientFields.CreatedAt.Desc().NullsLast().clause(clientsTable))
	assert.Equal(t, "clients.created_at ASC NULLS FIRST", ClientFields.CreatedAt.Desc().NullsLast().reversed().clause(clientsTable))
	assert.Equal(t, "COUNT(*) DESC", CountAll[Client]().Desc().clause(clientsTable))
	assert.Equal(t, "AVG(interactions.duration_minutes)::float8 ASC",
		InteractionFields.DurationMinutes.Avg().Asc().clause(interactionsTable))
}

func TestUniqueInputs(t *testing.T) {
	_, err := UserWhereUnique{}.uniquePredicate()
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "UserWhereUniqueInput needs at least one of `id`, `tenantId_email`")

	_, err = UserWhereUnique{TenantIDEmail: &UserTenantIDEmail{Email: "a@b.co"}}.uniquePredicate()
	assert.ErrorAs(t, err, &verr)

	tenantID := uuid.New()
	pred, err := SegmentWhereUnique{TenantIDName: &SegmentTenantIDName{TenantID: tenantID, Name: "Hot leads"}}.uniquePredicate()
	assert.NoError(t, err)
	query, args := compileWhere(pred, segmentsTable)
	assert.Contains(t, query, "WHERE (segments.tenant_id = $1 AND segments.name = $2)")
	assert.Equal(t, []any{tenantID, "Hot leads"}, args)
}

func TestPage(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{2, 3}, page(rows, 1, 2))
	assert.Equal(t, []int{4, 5}, page(rows, 0, -2))
	assert.Equal(t, []int{3, 4, 5}, page(rows, 2, 0))
	assert.Empty(t, page(rows, 10, 1))
}

func TestDistinctBy(t *testing.T) {
	rows := []Client{
		{CompanyName: "Acme", Status: ClientStatusLead},
		{CompanyName: "Beta", Status: ClientStatusLead},
		{CompanyName: "Acme", Status: ClientStatusActive},
	}
	out := distinctBy(rows, []string{"status"})
	assert.Len(t, out, 2)
	assert.Equal(t, "Acme", out[0].CompanyName)
	assert.Equal(t, "Acme", out[1].CompanyName)
}
