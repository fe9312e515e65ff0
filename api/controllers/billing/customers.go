package billing

import (
	"context"
	"net/http"

	"github.com/cashierhq/cashier-backend/api/responses"
	"github.com/cashierhq/cashier-backend/api/validators"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
	"github.com/cashierhq/cashier-backend/pkg/razorpay"
)

// CustomersService manages the user's gateway customer record.
type CustomersService interface {
	CreateOrGetCustomer(ctx context.Context, user *models.User) (*razorpay.Customer, error)
	SyncDetails(ctx context.Context, user *models.User) (*razorpay.Customer, error)
}

type customerActionRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type customerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func writeCustomer(w http.ResponseWriter, status int, customer *razorpay.Customer) {
	responses.WriteSuccessStatus(w, status, customerResponse{
		ID:    customer.ID,
		Name:  customer.Name,
		Email: customer.Email,
	})
}

// CreateCustomer ensures the user has a gateway customer and returns it.
func CreateCustomer(svc CustomersService, users UserStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		var req customerActionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := resolveUser(ctx, users, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		customer, err := svc.CreateOrGetCustomer(ctx, user)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeCustomer(w, http.StatusCreated, customer)
	}
}

// SyncCustomer pushes the user's current name, email and phone to the gateway.
func SyncCustomer(svc CustomersService, users UserStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		var req customerActionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := resolveUser(ctx, users, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		customer, err := svc.SyncDetails(ctx, user)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeCustomer(w, http.StatusOK, customer)
	}
}
