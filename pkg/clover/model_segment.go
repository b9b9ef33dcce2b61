package clover

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

const segmentsTable = "segments"

// Segment is a saved client filter. Criteria is evaluated by pkg/criteria.
type Segment struct {
	ID          uuid.UUID                      `db:"id" json:"id"`
	TenantID    uuid.UUID                      `db:"tenant_id" json:"tenant_id"`
	Name        string                         `db:"name" json:"name"`
	Description *string                        `db:"description" json:"description,omitempty"`
	Criteria    database.JSONB[map[string]any] `db:"criteria" json:"criteria"`
	CreatedAt   time.Time                      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time                      `db:"updated_at" json:"updated_at"`

	Tenant *Tenant `db:"-" json:"tenant,omitempty"`
}

func (s Segment) Unique() SegmentWhereUnique {
	return SegmentWhereUnique{ID: s.ID}
}

var SegmentFields = struct {
	ID          Field[Segment, uuid.UUID]
	TenantID    Field[Segment, uuid.UUID]
	Name        StringField[Segment]
	Description StringField[Segment]
	Criteria    JSONField[Segment]
	CreatedAt   Field[Segment, time.Time]
	UpdatedAt   Field[Segment, time.Time]
}{
	ID:          newField[Segment, uuid.UUID]("id"),
	TenantID:    newField[Segment, uuid.UUID]("tenant_id"),
	Name:        newStringField[Segment]("name"),
	Description: newStringField[Segment]("description"),
	Criteria:    newJSONField[Segment]("criteria"),
	CreatedAt:   newField[Segment, time.Time]("created_at"),
	UpdatedAt:   newField[Segment, time.Time]("updated_at"),
}

var SegmentRelations = struct {
	Tenant OneRelation[Segment, Tenant]
}{
	Tenant: oneRelation(tenantsTable, "tenant_id",
		func(s *Segment) any { return s.TenantID }, func(t *Tenant) any { return t.ID },
		func(s *Segment, t *Tenant) { s.Tenant = t }, func(db *DB) *Delegate[Tenant] { return db.Tenant }),
}

var segmentModel = &model[Segment]{
	name:         "Segment",
	table:        segmentsTable,
	columns:      []string{"id", "tenant_id", "name", "description", "criteria", "created_at", "updated_at"},
	tenantColumn: "tenant_id",
	updatedAt:    true,
	scope: func(tenantID uuid.UUID) Predicate[Segment] {
		return SegmentFields.TenantID.Equals(tenantID)
	},
}

// SegmentTenantIDName is the compound (tenant_id, name) key.
type SegmentTenantIDName struct {
	TenantID uuid.UUID
	Name     string
}

type SegmentWhereUnique struct {
	ID           uuid.UUID
	TenantIDName *SegmentTenantIDName
	And          Predicate[Segment]
}

func (u SegmentWhereUnique) uniquePredicate() (Predicate[Segment], error) {
	var preds []Predicate[Segment]
	if u.ID != uuid.Nil {
		preds = append(preds, SegmentFields.ID.Equals(u.ID))
	}
	if k := u.TenantIDName; k != nil {
		if k.TenantID == uuid.Nil || k.Name == "" {
			return nil, validationError("Argument `tenantId_name` needs both `tenantId` and `name`.")
		}
		preds = append(preds, SegmentFields.TenantID.Equals(k.TenantID), SegmentFields.Name.Equals(k.Name))
	}
	if len(preds) == 0 {
		return nil, missingUnique("Segment", "id", "tenantId_name")
	}
	return And(append(preds, u.And)...), nil
}

type SegmentCreateInput struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string `validate:"required,max=255"`
	Description *string
	Criteria    map[string]any
}

func (in SegmentCreateInput) insertValues() assignments {
	var v assignments
	v.set("id", in.ID)
	v.set("tenant_id", in.TenantID)
	v.set("name", in.Name)
	setPtr(&v, "description", in.Description)
	if in.Criteria != nil {
		v.set("criteria", database.NewJSONB(in.Criteria))
	}
	return v
}

type SegmentUpdateInput struct {
	Name        *string `validate:"omitempty,max=255"`
	Description *sql.Null[string]
	Criteria    *map[string]any
}

func (in SegmentUpdateInput) updateValues() assignments {
	var v assignments
	setPtr(&v, "name", in.Name)
	setNullable(&v, "description", in.Description)
	if in.Criteria != nil {
		v.set("criteria", database.NewJSONB(*in.Criteria))
	}
	return v
}
