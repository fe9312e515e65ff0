package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
)

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo Repository
}

// Service is the read side of billing persistence: the receipt and
// subscription history consumed by the billable surface.
type Service struct {
	repo Repository
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Receipts lists the user's receipts, most recently paid first.
func (s *Service) Receipts(ctx context.Context, userID uuid.UUID) ([]models.Receipt, error) {
	return s.repo.ListReceiptsByUser(ctx, userID)
}

// Subscriptions lists every subscription the user has ever held.
func (s *Service) Subscriptions(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	return s.repo.ListSubscriptionsByUser(ctx, userID)
}
