package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kmorozov/subctl/internal/models"
)

// PurchaseConfirmation is the backend's answer to a plan selection; the
// actual subscription is only created once payment proof is uploaded.
type PurchaseConfirmation struct {
	Message string `json:"message"`
	PlanID  uint   `json:"plan_id"`
}

type RenewConfirmation struct {
	Message string `json:"message"`
}

func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/api/user/", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Plans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := c.do(ctx, http.MethodGet, "/api/plans/", nil, "", &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (c *Client) Subscriptions(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	path := fmt.Sprintf("/api/users/%d/subscriptions/", userID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *Client) Purchase(ctx context.Context, planID uint) (*PurchaseConfirmation, error) {
	body := strings.NewReader(fmt.Sprintf(`{"plan_id": %d}`, planID))
	var res PurchaseConfirmation
	if err := c.do(ctx, http.MethodPost, "/api/purchase/", body, "application/json", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) UploadPayment(ctx context.Context, planID uint, filename string, file io.Reader) (*models.Payment, error) {
	buf, contentType, err := c.newMultipart(planID, filename, file)
	if err != nil {
		return nil, err
	}
	var payment models.Payment
	if err := c.do(ctx, http.MethodPost, "/api/payments/", buf, contentType, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) Renew(ctx context.Context) (*RenewConfirmation, error) {
	var res RenewConfirmation
	if err := c.do(ctx, http.MethodPost, "/api/renew/", nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}
