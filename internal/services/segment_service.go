// Package services holds the CRM operations that span more than one model call.
package services

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/criteria"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type SegmentService struct {
	db     *clover.DB
	logger ectologger.Logger
}

func NewSegmentService(db *clover.DB, logger ectologger.Logger) *SegmentService {
	return &SegmentService{db: db, logger: logger}
}

// MemberPage is one page of the clients matching a segment.
type MemberPage struct {
	Clients []clover.Client `json:"clients"`
	Total   int64           `json:"total"`
	Take    int             `json:"take"`
	Skip    int             `json:"skip"`
}

func invalidCriteria(err error) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid criteria: %v", err)
}

func segmentUnique(tenantID, id uuid.UUID) clover.SegmentWhereUnique {
	return clover.SegmentWhereUnique{ID: id, And: clover.SegmentFields.TenantID.Equals(tenantID)}
}

func (s *SegmentService) Create(ctx context.Context, tenantID uuid.UUID, in clover.SegmentCreateInput) (*clover.Segment, error) {
	if err := criteria.Validate(in.Criteria); err != nil {
		return nil, invalidCriteria(err)
	}
	if in.Criteria == nil {
		in.Criteria = map[string]any{}
	}
	in.TenantID = tenantID

	segment, err := s.db.Segment.Create(ctx, clover.CreateArgs[clover.Segment]{Data: in})
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"segment_id": segment.ID,
		"criteria":   criteria.HashCriteria(segment.Criteria.Data),
	}).Info("segment created")
	return segment, nil
}

func (s *SegmentService) Get(ctx context.Context, tenantID, id uuid.UUID) (*clover.Segment, error) {
	return s.db.Segment.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.Segment]{Where: segmentUnique(tenantID, id)})
}

func (s *SegmentService) List(ctx context.Context, tenantID uuid.UUID, page utils.Page) ([]clover.Segment, error) {
	return s.db.Segment.FindMany(ctx, clover.FindManyArgs[clover.Segment]{
		Where:   clover.SegmentFields.TenantID.Equals(tenantID),
		OrderBy: []clover.OrderBy[clover.Segment]{clover.SegmentFields.Name.Asc()},
		Take:    page.Take,
		Skip:    page.Skip,
	})
}

func (s *SegmentService) Update(ctx context.Context, tenantID, id uuid.UUID, in clover.SegmentUpdateInput) (*clover.Segment, error) {
	if in.Criteria != nil {
		if err := criteria.Validate(*in.Criteria); err != nil {
			return nil, invalidCriteria(err)
		}
	}
	return s.db.Segment.Update(ctx, clover.UpdateArgs[clover.Segment]{Where: segmentUnique(tenantID, id), Data: in})
}

func (s *SegmentService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := s.db.Segment.Delete(ctx, clover.DeleteArgs[clover.Segment]{Where: segmentUnique(tenantID, id)})
	return err
}

// Members returns a page of the tenant's clients matching the segment criteria. Conditions that
// compile to SQL filter in the query; the rest are evaluated against each loaded client, in which
// case paging happens after filtering.
func (s *SegmentService) Members(ctx context.Context, tenantID, segmentID uuid.UUID, page utils.Page) (*MemberPage, error) {
	segment, err := s.Get(ctx, tenantID, segmentID)
	if err != nil {
		return nil, err
	}

	compiled, err := criteria.Compile(segment.Criteria.Data)
	if err != nil {
		return nil, invalidCriteria(err)
	}

	where := clover.And(clover.ClientFields.TenantID.Equals(tenantID), compiled.Predicate)
	orderBy := []clover.OrderBy[clover.Client]{clover.ClientFields.CompanyName.Asc()}
	result := &MemberPage{Take: page.Take, Skip: page.Skip}

	if len(compiled.Residual) == 0 {
		total, err := s.db.Client.Count(ctx, clover.CountArgs[clover.Client]{Where: where})
		if err != nil {
			return nil, err
		}
		clients, err := s.db.Client.FindMany(ctx, clover.FindManyArgs[clover.Client]{
			Where:   where,
			OrderBy: orderBy,
			Take:    page.Take,
			Skip:    page.Skip,
		})
		if err != nil {
			return nil, err
		}
		result.Clients, result.Total = clients, total
		return result, nil
	}

	candidates, err := s.db.Client.FindMany(ctx, clover.FindManyArgs[clover.Client]{Where: where, OrderBy: orderBy})
	if err != nil {
		return nil, err
	}
	matched := ectolinq.Filter(candidates, compiled.MatchesResidual)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"segment_id": segmentID,
		"candidates": len(candidates),
		"matched":    len(matched),
		"residual":   len(compiled.Residual),
	}).Debug("segment members filtered in memory")

	result.Total = int64(len(matched))
	result.Clients = window(matched, page.Skip, page.Take)
	return result, nil
}

func window[T any](rows []T, skip, take int) []T {
	if skip >= len(rows) {
		return []T{}
	}
	rows = rows[skip:]
	if take > 0 && take < len(rows) {
		rows = rows[:take]
	}
	return rows
}
