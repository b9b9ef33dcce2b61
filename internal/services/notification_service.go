package services

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clover"
	"github.com/Ramsey-B/clover/pkg/utils"
)

type NotificationService struct {
	db     *clover.DB
	logger ectologger.Logger
}

func NewNotificationService(db *clover.DB, logger ectologger.Logger) *NotificationService {
	return &NotificationService{db: db, logger: logger}
}

func ownedBy(tenantID, userID uuid.UUID) clover.Predicate[clover.Notification] {
	return clover.And(
		clover.NotificationFields.TenantID.Equals(tenantID),
		clover.NotificationFields.UserID.Equals(userID),
	)
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, tenantID, userID uuid.UUID, unreadOnly bool, page utils.Page) ([]clover.Notification, error) {
	where := ownedBy(tenantID, userID)
	if unreadOnly {
		where = clover.And(where, clover.NotificationFields.Read.Equals(false))
	}
	return s.db.Notification.FindMany(ctx, clover.FindManyArgs[clover.Notification]{
		Where:   where,
		OrderBy: []clover.OrderBy[clover.Notification]{clover.NotificationFields.CreatedAt.Desc()},
		Take:    page.Take,
		Skip:    page.Skip,
	})
}

func (s *NotificationService) UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	return s.db.Notification.Count(ctx, clover.CountArgs[clover.Notification]{
		Where: clover.And(ownedBy(tenantID, userID), clover.NotificationFields.Read.Equals(false)),
	})
}

// MarkRead marks one of the user's notifications read. Another user's notification is not found.
func (s *NotificationService) MarkRead(ctx context.Context, tenantID, userID, id uuid.UUID) (*clover.Notification, error) {
	return s.db.Notification.Update(ctx, clover.UpdateArgs[clover.Notification]{
		Where: clover.NotificationWhereUnique{ID: id, And: ownedBy(tenantID, userID)},
		Data:  clover.NotificationUpdateInput{Read: clover.Ptr(true)},
	})
}

func (s *NotificationService) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	n, err := s.db.Notification.UpdateMany(ctx, clover.UpdateManyArgs[clover.Notification]{
		Where: clover.And(ownedBy(tenantID, userID), clover.NotificationFields.Read.Equals(false)),
		Data:  clover.NotificationUpdateInput{Read: clover.Ptr(true)},
	})
	if err != nil {
		return 0, err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{"user_id": userID, "count": n}).Debug("notifications marked read")
	return n, nil
}
