package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cashierhq/cashier-backend/api/responses"
	"github.com/cashierhq/cashier-backend/api/validators"
	subscriptionsvc "github.com/cashierhq/cashier-backend/internal/subscriptions"
	"github.com/cashierhq/cashier-backend/pkg/db/models"
	pkgerrors "github.com/cashierhq/cashier-backend/pkg/errors"
	"github.com/cashierhq/cashier-backend/pkg/logger"
)

// SubscriptionsService describes the subscription lifecycle methods used by
// the HTTP controllers.
type SubscriptionsService interface {
	NewSubscription(user *models.User, name, planID string) *subscriptionsvc.Builder
	Find(ctx context.Context, userID uuid.UUID, name string) (*models.Subscription, error)
	UpdateQuantity(ctx context.Context, sub *models.Subscription, quantity int) (*models.Subscription, error)
	Swap(ctx context.Context, sub *models.Subscription, planID string) (*models.Subscription, error)
	SwapAndInvoice(ctx context.Context, sub *models.Subscription, planID string) (*models.Subscription, error)
	Pause(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	Unpause(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	Cancel(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	CancelNow(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	Info(ctx context.Context, sub *models.Subscription) (*subscriptionsvc.Info, error)
	DeactivatePastDue() bool
}

// SubscriptionLister lists the locally persisted subscription rows.
type SubscriptionLister interface {
	Subscriptions(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

type createSubscriptionRequest struct {
	UserID    string            `json:"user_id" validate:"required,uuid"`
	Name      string            `json:"name"`
	PlanID    string            `json:"plan_id" validate:"required"`
	Quantity  int               `json:"quantity" validate:"omitempty,min=1"`
	TrialDays int               `json:"trial_days" validate:"omitempty,min=1"`
	SkipTrial bool              `json:"skip_trial"`
	Coupon    string            `json:"coupon"`
	Metadata  map[string]string `json:"metadata"`
	ReturnTo  *returnToRequest  `json:"return_to"`
}

type returnToRequest struct {
	URL   string `json:"url" validate:"required"`
	Param string `json:"param"`
}

type updateSubscriptionRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	Quantity   *int   `json:"quantity" validate:"omitempty,min=1"`
	PlanID     string `json:"plan_id"`
	InvoiceNow bool   `json:"invoice_now"`
}

type subscriptionActionRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type checkoutResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	ShortURL       string `json:"short_url"`
}

type subscriptionResponse struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	PlanID                 string     `json:"plan_id"`
	Status                 string     `json:"status"`
	Quantity               int        `json:"quantity"`
	RazorpaySubscriptionID string     `json:"razorpay_subscription_id,omitempty"`
	TrialEndsAt            *time.Time `json:"trial_ends_at,omitempty"`
	PausedFrom             *time.Time `json:"paused_from,omitempty"`
	EndsAt                 *time.Time `json:"ends_at,omitempty"`
	Active                 bool       `json:"active"`
	Valid                  bool       `json:"valid"`
	OnTrial                bool       `json:"on_trial"`
	OnGracePeriod          bool       `json:"on_grace_period"`
	Recurring              bool       `json:"recurring"`
	CreatedAt              time.Time  `json:"created_at"`
}

type subscriptionListResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
}

type subscriptionDetailResponse struct {
	Subscription subscriptionResponse  `json:"subscription"`
	Gateway      *subscriptionsvc.Info `json:"gateway,omitempty"`
}

func toSubscriptionResponse(sub *models.Subscription, deactivatePastDue bool) subscriptionResponse {
	return subscriptionResponse{
		ID:                     sub.ID.String(),
		Name:                   sub.Name,
		PlanID:                 sub.PlanID,
		Status:                 string(sub.Status),
		Quantity:               sub.Quantity,
		RazorpaySubscriptionID: sub.GatewayID(),
		TrialEndsAt:            sub.TrialEndsAt,
		PausedFrom:             sub.PausedFrom,
		EndsAt:                 sub.EndsAt,
		Active:                 sub.Active(deactivatePastDue),
		Valid:                  sub.Valid(deactivatePastDue),
		OnTrial:                sub.OnTrial(),
		OnGracePeriod:          sub.OnGracePeriod(),
		Recurring:              sub.Recurring(),
		CreatedAt:              sub.CreatedAt,
	}
}

// CreateSubscription starts the checkout flow: it creates the subscription at
// the gateway and returns the hosted page link. The local row appears once
// the gateway confirms authorization via webhook.
func CreateSubscription(svc SubscriptionsService, users UserStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var req createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		user, err := resolveUser(ctx, users, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		builder := svc.NewSubscription(user, req.Name, req.PlanID)
		if req.Quantity > 0 {
			builder = builder.Quantity(req.Quantity)
		}
		if req.SkipTrial {
			builder = builder.SkipTrial()
		} else if req.TrialDays > 0 {
			builder = builder.TrialDays(req.TrialDays)
		}
		if req.Coupon != "" {
			builder = builder.WithCoupon(req.Coupon)
		}
		if len(req.Metadata) > 0 {
			builder = builder.WithMetadata(req.Metadata)
		}
		if req.ReturnTo != nil {
			builder = builder.ReturnTo(req.ReturnTo.URL, req.ReturnTo.Param)
		}

		remote, err := builder.Create(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			sctx := logg.WithBillableID(ctx, user.ID.String())
			logg.Info(logg.WithSubscriptionID(sctx, remote.ID), "subscription checkout created")
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			SubscriptionID: remote.ID,
			Status:         remote.Status,
			ShortURL:       remote.ShortURL,
		})
	}
}

// ListSubscriptions returns the user's locally persisted subscriptions.
func ListSubscriptions(lister SubscriptionLister, svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if lister == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid uuid"))
			return
		}

		subs, err := lister.Subscriptions(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := subscriptionListResponse{Subscriptions: make([]subscriptionResponse, 0, len(subs))}
		for i := range subs {
			resp.Subscriptions = append(resp.Subscriptions, toSubscriptionResponse(&subs[i], svc.DeactivatePastDue()))
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetSubscription returns one subscription with the gateway's live snapshot.
func GetSubscription(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		sub, err := findNamedSubscription(ctx, svc, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := subscriptionDetailResponse{Subscription: toSubscriptionResponse(sub, svc.DeactivatePastDue())}
		if sub.GatewayID() != "" {
			info, err := svc.Info(ctx, sub)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			resp.Gateway = info
		}
		responses.WriteSuccess(w, resp)
	}
}

// UpdateSubscription applies a quantity change, a plan swap, or both.
func UpdateSubscription(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var req updateSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.Quantity == nil && req.PlanID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quantity or plan_id is required"))
			return
		}

		sub, err := findSubscriptionForUpdate(ctx, svc, r, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if req.Quantity != nil {
			if sub, err = svc.UpdateQuantity(ctx, sub, *req.Quantity); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		if req.PlanID != "" && req.PlanID != sub.PlanID {
			swap := svc.Swap
			if req.InvoiceNow {
				swap = svc.SwapAndInvoice
			}
			if sub, err = swap(ctx, sub, req.PlanID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		responses.WriteSuccess(w, toSubscriptionResponse(sub, svc.DeactivatePastDue()))
	}
}

// PauseSubscription schedules a pause at the gateway.
func PauseSubscription(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, func(ctx context.Context, s SubscriptionsService, sub *models.Subscription) (*models.Subscription, error) {
		return s.Pause(ctx, sub)
	})
}

// ResumeSubscription lifts a pause.
func ResumeSubscription(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, func(ctx context.Context, s SubscriptionsService, sub *models.Subscription) (*models.Subscription, error) {
		return s.Unpause(ctx, sub)
	})
}

// CancelSubscription cancels at cycle end, leaving the grace period open.
func CancelSubscription(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, func(ctx context.Context, s SubscriptionsService, sub *models.Subscription) (*models.Subscription, error) {
		return s.Cancel(ctx, sub)
	})
}

// CancelSubscriptionNow cancels immediately with no grace period.
func CancelSubscriptionNow(svc SubscriptionsService, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, func(ctx context.Context, s SubscriptionsService, sub *models.Subscription) (*models.Subscription, error) {
		return s.CancelNow(ctx, sub)
	})
}

func subscriptionAction(svc SubscriptionsService, logg *logger.Logger, action func(context.Context, SubscriptionsService, *models.Subscription) (*models.Subscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		var req subscriptionActionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := findSubscriptionForUpdate(ctx, svc, r, req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err = action(ctx, svc, sub)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSubscriptionResponse(sub, svc.DeactivatePastDue()))
	}
}

func findNamedSubscription(ctx context.Context, svc SubscriptionsService, r *http.Request) (*models.Subscription, error) {
	return findSubscriptionForUpdate(ctx, svc, r, r.URL.Query().Get("user_id"))
}

func findSubscriptionForUpdate(ctx context.Context, svc SubscriptionsService, r *http.Request, rawUserID string) (*models.Subscription, error) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id must be a valid uuid")
	}

	name := chi.URLParam(r, "name")
	sub, err := svc.Find(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}
