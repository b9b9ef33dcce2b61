package services

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clover"
)

// RequireTenantUser fails with 400 when userID is not a user of the tenant. field names the
// request field the id came from.
func RequireTenantUser(ctx context.Context, db *clover.DB, tenantID, userID uuid.UUID, field string) error {
	_, err := db.User.FindUniqueOrThrow(ctx, clover.FindUniqueArgs[clover.User]{
		Where:  clover.UserWhereUnique{ID: userID, And: clover.UserFields.TenantID.Equals(tenantID)},
		Select: []clover.ColumnRef[clover.User]{clover.UserFields.ID},
	})
	if clover.IsNotFound(err) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s does not belong to tenant", field)
	}
	return err
}
