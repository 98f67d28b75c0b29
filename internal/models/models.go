package models

import (
	"strings"
	"time"
)

// Plan is a purchasable catalog entry. The backend serializes price as a
// decimal string.
type Plan struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	DurationMonths int    `json:"duration_months"`
	Active         bool   `json:"active"`
}

type User struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SubscriptionStatus tracks verification and lifecycle of a subscription.
// Older revisions of the backend also emitted a lowercase "inactive";
// NormalizeStatus folds that into the canonical vocabulary.
type SubscriptionStatus string

const (
	StatusPending  SubscriptionStatus = "PENDING"
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusExpired  SubscriptionStatus = "EXPIRED"
	StatusCanceled SubscriptionStatus = "CANCELED"
)

func NormalizeStatus(s string) SubscriptionStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending
	case "ACTIVE":
		return StatusActive
	case "CANCELED":
		return StatusCanceled
	default:
		return StatusExpired
	}
}

type Subscription struct {
	ID        uint               `json:"id"`
	UserID    uint               `json:"user"`
	Plan      Plan               `json:"plan"`
	StartDate Date               `json:"start_date"`
	EndDate   Date               `json:"end_date"`
	Status    SubscriptionStatus `json:"status"`
	// IsActive is a convenience the backend derives from Status and EndDate.
	// Active is the source of truth on the client side.
	IsActive bool `json:"is_active"`
}

// Active reports whether the subscription is usable right now: verified
// (status ACTIVE) and not past its end date. End dates are calendar days,
// so the comparison uses the caller's calendar date, not the instant;
// otherwise "ends today" flips with the caller's zone offset.
func (s *Subscription) Active(now time.Time) bool {
	if NormalizeStatus(string(s.Status)) != StatusActive {
		return false
	}
	if s.EndDate.IsZero() {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !s.EndDate.Time().Before(today)
}

// CurrentSubscription picks the subscription with the latest end date.
// Ties keep the first-seen entry. Returns nil for an empty slice.
func CurrentSubscription(subs []Subscription) *Subscription {
	var current *Subscription
	for i := range subs {
		if current == nil || subs[i].EndDate.Time().After(current.EndDate.Time()) {
			current = &subs[i]
		}
	}
	return current
}

type Payment struct {
	ID           uint   `json:"id"`
	UserID       uint   `json:"user"`
	PlanID       uint   `json:"plan"`
	ProofPath    string `json:"payment_proof"`
	IsVerified   bool   `json:"is_verified"`
	CreatedAtRaw string `json:"created_at"`
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
