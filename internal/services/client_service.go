package services

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type ClientService struct {
	db     *clover.DB
	logger ectologger.Logger
}

func NewClientService(db *clover.DB, logger ectologger.Logger) *ClientService {
	return &ClientService{db: db, logger: logger}
}

// ClientFilter narrows a client listing. Search matches company, contact or email, ignoring case.
type ClientFilter struct {
	Status       []clover.ClientStatus
	AssignedToID *uuid.UUID
	Search       string
	Tag          string
}

func (f ClientFilter) predicate(tenantID uuid.UUID) clover.Predicate[clover.Client] {
	preds := []clover.Predicate[clover.Client]{clover.ClientFields.TenantID.Equals(tenantID)}
	if len(f.Status) > 0 {
		preds = append(preds, clover.ClientFields.Status.In(f.Status...))
	}
	if f.AssignedToID != nil {
		preds = append(preds, clover.ClientFields.AssignedToID.Equals(*f.AssignedToID))
	}
	if f.Search != "" {
		preds = append(preds, clover.Or(
			clover.ClientFields.CompanyName.ContainsFold(f.Search),
			clover.ClientFields.ContactName.ContainsFold(f.Search),
			clover.ClientFields.Email.ContainsFold(f.Search),
		))
	}
	if f.Tag != "" {
		preds = append(preds, clover.ClientFields.Tags.ArrayContains(f.Tag))
	}
	return clover.And(preds...)
}

func clientUnique(tenantID, id uuid.UUID) clover.ClientWhereUnique {
	return clover.ClientWhereUnique{ID: id, And: clover.ClientFields.TenantID.Equals(tenantID)}
}

// List returns a page of clients and the total matching the filter.
func (s *ClientService) List(ctx context.Context, tenantID uuid.UUID, filter ClientFilter, page utils.Page) ([]clover.Client, int64, error) {
	where := filter.predicate(tenantID)

	results, err := s.db.Batch(ctx, []clover.BatchOp{
		clover.Op(func(ctx context.Context) ([]clover.Client, error) {
			return s.db.Client.FindMany(ctx, clover.FindManyArgs[clover.Client]{
				Where:   where,
				OrderBy: []clover.OrderBy[clover.Client]{clover.ClientFields.CreatedAt.Desc()},
				Take:    page.Take,
				Skip:    page.Skip,
			})
		}),
		clover.Op(func(ctx context.Context) (int64, error) {
			return s.db.Client.Count(ctx, clover.CountArgs[clover.Client]{Where: where})
		}),
	})
	if err != nil {
		return nil, 0, err
	}
	return results[0].([]clover.Client), results[1].(int64), nil
}

// Get loads a client with its assignee and its most recent interactions.
func (s *ClientService) Get(ctx context.Context, tenantID, id uuid.UUID, interactions int) (*clover.Client, error) {
	include := []clover.Include[clover.Client]{
		clover.ClientRelations.AssignedTo.Include(clover.IncludeOneArgs[clover.User]{
			Select: []clover.ColumnRef[clover.User]{clover.UserFields.ID, clover.UserFields.Email, clover.UserFields.FirstName, clover.UserFields.LastName},
		}),
	}
	if interactions > 0 {
		include = append(include, clover.ClientRelations.Interactions.Include(clover.IncludeArgs[clover.Interaction]{
			OrderBy: []clover.OrderBy[clover.Interaction]{clover.InteractionFields.OccurredAt.Desc()},
			Take:    interactions,
		}))
	}
	return s.db.Client.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.Client]{
		Where:   clientUnique(tenantID, id),
		Include: include,
	})
}

// Create inserts a client and notifies its assignee in the same transaction.
func (s *ClientService) Create(ctx context.Context, tenantID uuid.UUID, in clover.ClientCreateInput) (*clover.Client, error) {
	in.TenantID = tenantID

	var client *clover.Client
	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if in.AssignedToID != nil {
			if err := RequireTenantUser(ctx, s.db, tenantID, *in.AssignedToID, "assigned_to_id"); err != nil {
				return err
			}
		}
		var err error
		client, err = s.db.Client.Create(ctx, clover.CreateArgs[clover.Client]{Data: in})
		if err != nil {
			return err
		}
		if client.AssignedToID != nil {
			return s.notifyAssignee(ctx, client)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Update applies in to the client. A change of assignee notifies the new assignee in the same
// transaction.
func (s *ClientService) Update(ctx context.Context, tenantID, id uuid.UUID, in clover.ClientUpdateInput) (*clover.Client, error) {
	var client *clover.Client
	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		var previous *uuid.UUID
		if in.AssignedToID != nil {
			if in.AssignedToID.Valid {
				if err := RequireTenantUser(ctx, s.db, tenantID, in.AssignedToID.V, "assigned_to_id"); err != nil {
					return err
				}
			}
			current, err := s.db.Client.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.Client]{
				Where:  clientUnique(tenantID, id),
				Select: []clover.ColumnRef[clover.Client]{clover.ClientFields.ID, clover.ClientFields.AssignedToID},
			})
			if err != nil {
				return err
			}
			previous = current.AssignedToID
		}

		var err error
		client, err = s.db.Client.Update(ctx, clover.UpdateArgs[clover.Client]{Where: clientUnique(tenantID, id), Data: in})
		if err != nil {
			return err
		}

		if in.AssignedToID != nil && client.AssignedToID != nil && !sameUUID(previous, client.AssignedToID) {
			return s.notifyAssignee(ctx, client)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *ClientService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := s.db.Client.Delete(ctx, clover.DeleteArgs[clover.Client]{Where: clientUnique(tenantID, id)})
	return err
}

func (s *ClientService) notifyAssignee(ctx context.Context, client *clover.Client) error {
	_, err := s.db.Notification.Create(ctx, clover.CreateArgs[clover.Notification]{
		Data: clover.NotificationCreateInput{
			TenantID: client.TenantID,
			UserID:   *client.AssignedToID,
			Type:     clover.NotificationTypeAssignment,
			Title:    "New client assigned",
			Message:  fmt.Sprintf("%s has been assigned to you", client.CompanyName),
			Data:     map[string]any{"client_id": client.ID.String()},
		},
		Select: []clover.ColumnRef[clover.Notification]{clover.NotificationFields.ID},
	})
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id": client.ID,
		"user_id":   *client.AssignedToID,
	}).Info("assignment notification created")
	return nil
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
