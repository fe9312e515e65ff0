package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
)

// UserStore resolves billables referenced by the billing endpoints.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

func resolveUser(ctx context.Context, users UserStore, raw string) (*models.User, error) {
	if users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user store unavailable")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid uuid")
	}
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
