package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kmorozov/subctl/internal/models"
	"github.com/kmorozov/subctl/internal/tokenstore"
	"github.com/kmorozov/subctl/pkg/apiclient"
	"github.com/kmorozov/subctl/pkg/tokens"
)

// Page names the screen the client should present next. Transitions:
// login -> plans <-> payment_upload -> dashboard, and back to login on
// logout or an unrecoverable credential failure.
type Page string

const (
	PageLogin         Page = "login"
	PagePlans         Page = "plans"
	PagePaymentUpload Page = "payment_upload"
	PageDashboard     Page = "dashboard"
)

// State is a snapshot of the session: who is logged in, what they can buy,
// what they own, and which page is current. Notice carries the last
// user-facing message (usually a converted error).
type State struct {
	User          *models.User
	Plans         []models.Plan
	Subscription  *models.Subscription
	Page          Page
	PendingPlanID uint
	Notice        string
}

// Manager owns the session state and drives page transitions from API
// results. It is an explicit object handed to callers, not ambient state;
// it is not safe for concurrent use.
type Manager struct {
	api   *apiclient.Client
	store *tokenstore.Store
	log   *slog.Logger

	state State
}

func NewManager(api *apiclient.Client, store *tokenstore.Store, log *slog.Logger) *Manager {
	return &Manager{
		api:   api,
		store: store,
		log:   log,
		state: State{Page: PageLogin},
	}
}

func (m *Manager) State() State {
	return m.state
}

// Login authenticates, derives the user identity from the access token's
// claims, and moves to the plan list. Failure leaves the session
// unauthenticated with a notice; nothing is retried.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	pair, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.state.Notice = "Login failed. Please check your credentials."
		m.log.Warn("login failed", "username", username, "error", err)
		return err
	}

	user, err := userFromToken(pair.Access)
	if err != nil {
		// The pair was already persisted by the API client; drop it so a
		// later Restore does not resurrect an unusable token.
		if logoutErr := m.Logout(ctx); logoutErr != nil {
			m.log.Warn("clearing persisted tokens failed", "error", logoutErr)
		}
		m.state.Notice = "Login failed. Please check your credentials."
		return fmt.Errorf("decode access token: %w", err)
	}

	m.state.User = user
	m.state.Page = PagePlans
	m.state.Notice = ""
	m.log.Info("logged in", "user_id", user.ID, "username", user.Username)

	m.LoadPlans(ctx)
	return m.SyncSubscriptionStatus(ctx)
}

// Restore optimistically rebuilds a session from the persisted access
// token without validating it. A probe request decides: if the backend
// rejects the credentials and they cannot be refreshed, the session is
// cleared.
func (m *Manager) Restore(ctx context.Context) error {
	pair, err := m.store.Load()
	if err != nil {
		return err
	}
	if pair.Access == "" {
		m.state.Page = PageLogin
		return nil
	}

	user, err := userFromToken(pair.Access)
	if err != nil {
		m.log.Warn("persisted token undecodable, clearing session", "error", err)
		return m.Logout(ctx)
	}
	m.state.User = user
	m.state.Page = PagePlans

	if _, err := m.api.CurrentUser(ctx); err != nil {
		if unrecoverable(err) || rejected(err) {
			m.log.Warn("persisted session rejected, clearing", "error", err)
			return m.Logout(ctx)
		}
		m.state.Notice = "Failed to fetch user data."
		return err
	}

	m.LoadPlans(ctx)
	return m.SyncSubscriptionStatus(ctx)
}

// Logout clears all session state and persisted tokens unconditionally
// and lands on the login page. Safe to call on an already-empty session.
func (m *Manager) Logout(ctx context.Context) error {
	m.clearSession()
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.log.Info("logged out")
	return nil
}

// SyncSubscriptionStatus fetches the user's subscriptions and picks the
// one with the latest end date as current: dashboard when one exists,
// plan list otherwise.
func (m *Manager) SyncSubscriptionStatus(ctx context.Context) error {
	if m.state.User == nil {
		return apiclient.ErrNoSession
	}

	subs, err := m.api.Subscriptions(ctx, m.state.User.ID)
	if err != nil {
		if unrecoverable(err) {
			m.log.Warn("credentials unrecoverable during sync, logging out", "error", err)
			return m.Logout(ctx)
		}
		m.state.Notice = "Failed to fetch subscription status."
		m.state.Subscription = nil
		m.state.Page = PagePlans
		return err
	}

	current := models.CurrentSubscription(subs)
	m.state.Subscription = current
	if current != nil {
		m.state.Page = PageDashboard
	} else {
		m.state.Page = PagePlans
	}
	return nil
}

func (m *Manager) LoadPlans(ctx context.Context) {
	plans, err := m.api.Plans(ctx)
	if err != nil {
		m.state.Notice = "Failed to load plans."
		m.log.Warn("plan fetch failed", "error", err)
		return
	}
	m.state.Plans = plans
}

// Purchase selects a plan and moves to the payment upload page, holding
// the plan id as pending context until the upload completes.
func (m *Manager) Purchase(ctx context.Context, planID uint) error {
	res, err := m.api.Purchase(ctx, planID)
	if err != nil {
		if unrecoverable(err) {
			return m.Logout(ctx)
		}
		m.state.Notice = "Purchase failed: " + userMessage(err)
		return err
	}

	m.state.PendingPlanID = planID
	m.state.Page = PagePaymentUpload
	m.state.Notice = res.Message
	m.log.Info("plan selected", "plan_id", planID)
	return nil
}

// UploadPaymentProof submits the pending plan and proof file, then
// immediately re-syncs the subscription status.
func (m *Manager) UploadPaymentProof(ctx context.Context, filename string, file io.Reader) error {
	if m.state.PendingPlanID == 0 {
		m.state.Notice = "Select a plan before uploading payment proof."
		return errors.New("no pending plan")
	}

	payment, err := m.api.UploadPayment(ctx, m.state.PendingPlanID, filename, file)
	if err != nil {
		if unrecoverable(err) {
			return m.Logout(ctx)
		}
		m.state.Notice = "Upload failed: " + userMessage(err)
		return err
	}

	m.log.Info("payment proof uploaded", "payment_id", payment.ID, "plan_id", m.state.PendingPlanID)
	m.state.PendingPlanID = 0
	m.state.Notice = "Payment proof uploaded. Awaiting verification."
	return m.SyncSubscriptionStatus(ctx)
}

// Renew requests a renewal of the current subscription and re-syncs.
func (m *Manager) Renew(ctx context.Context) error {
	res, err := m.api.Renew(ctx)
	if err != nil {
		if unrecoverable(err) {
			return m.Logout(ctx)
		}
		m.state.Notice = "Renewal failed: " + userMessage(err)
		return err
	}

	m.state.Notice = res.Message
	return m.SyncSubscriptionStatus(ctx)
}

func (m *Manager) clearSession() {
	m.state = State{Page: PageLogin}
}

// userFromToken keeps the invariant that the session user never diverges
// from the access token's claims.
func userFromToken(access string) (*models.User, error) {
	claims, err := tokens.DecodeUnverified(access)
	if err != nil {
		return nil, err
	}
	return &models.User{ID: claims.UserID, Username: claims.Username}, nil
}

// unrecoverable reports credential failures that cannot be fixed without
// a fresh login. They are treated exactly like an explicit logout.
func unrecoverable(err error) bool {
	return errors.Is(err, apiclient.ErrRefreshFailed)
}

// rejected reports an authentication rejection from the backend itself.
func rejected(err error) bool {
	var apiErr *apiclient.APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

func userMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "An error occurred."
}
