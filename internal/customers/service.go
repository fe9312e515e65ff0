package customers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/cashierhq/cashier-backend/pkg/db/models"
	"github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// Gateway is the slice of the Razorpay client the customer service needs.
type Gateway interface {
	CreateCustomer(ctx context.Context, params razorpay.CustomerParams) (*razorpay.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params razorpay.CustomerParams) (*razorpay.Customer, error)
	FetchCustomer(ctx context.Context, id string) (*razorpay.Customer, error)
	Currency() string
}

// UserStore persists the gateway customer id against the owning user.
type UserStore interface {
	UpdateCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

// ServiceParams groups dependencies for the customer service.
type ServiceParams struct {
	Gateway Gateway
	Users   UserStore
}

// Service links local users to Razorpay customer records.
type Service struct {
	gateway Gateway
	users   UserStore
}

// NewService builds a customer service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, errors.New(errors.CodeInternal, "gateway is required")
	}
	if params.Users == nil {
		return nil, errors.New(errors.CodeInternal, "user store is required")
	}
	return &Service{gateway: params.Gateway, users: params.Users}, nil
}

// CreateAsCustomer registers the user with the gateway. Users that already
// hold a customer id must use UpdateCustomer or SyncDetails instead.
func (s *Service) CreateAsCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	if user == nil {
		return nil, errors.New(errors.CodeValidation, "user is required")
	}
	if user.HasCustomer() {
		return nil, errors.New(errors.CodeStateConflict, "user is already a razorpay customer")
	}

	customer, err := s.gateway.CreateCustomer(ctx, s.paramsFor(user))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(customer.ID) == "" {
		return nil, errors.New(errors.CodeDependency, "razorpay customer id missing")
	}

	if err := s.users.UpdateCustomerID(ctx, user.ID, customer.ID); err != nil {
		return nil, err
	}
	user.RazorpayCustomerID = &customer.ID
	return customer, nil
}

// CreateOrGetCustomer returns the user's gateway record, creating it first
// when the user has never been registered.
func (s *Service) CreateOrGetCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	if user == nil {
		return nil, errors.New(errors.CodeValidation, "user is required")
	}
	if user.HasCustomer() {
		return s.gateway.FetchCustomer(ctx, *user.RazorpayCustomerID)
	}
	return s.CreateAsCustomer(ctx, user)
}

// UpdateCustomer pushes arbitrary attribute overrides to the gateway record.
func (s *Service) UpdateCustomer(ctx context.Context, user *models.User, params razorpay.CustomerParams) (*razorpay.Customer, error) {
	if user == nil || !user.HasCustomer() {
		return nil, errors.New(errors.CodeStateConflict, "user is not a razorpay customer yet")
	}
	return s.gateway.UpdateCustomer(ctx, *user.RazorpayCustomerID, params)
}

// SyncDetails pushes the user's current name, email and phone to the gateway.
func (s *Service) SyncDetails(ctx context.Context, user *models.User) (*razorpay.Customer, error) {
	if user == nil || !user.HasCustomer() {
		return nil, errors.New(errors.CodeStateConflict, "user is not a razorpay customer yet")
	}
	return s.gateway.UpdateCustomer(ctx, *user.RazorpayCustomerID, s.paramsFor(user))
}

// PreferredCurrency is the ISO currency code charges default to.
func (s *Service) PreferredCurrency() string {
	return s.gateway.Currency()
}

func (s *Service) paramsFor(user *models.User) razorpay.CustomerParams {
	params := razorpay.CustomerParams{
		Name:  strings.TrimSpace(user.Name),
		Email: strings.TrimSpace(user.Email),
		Notes: map[string]string{"billable_id": user.ID.String()},
	}
	if user.Phone != nil {
		params.Contact = strings.TrimSpace(*user.Phone)
	}
	return params
}
