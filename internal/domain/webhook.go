package domain

import (
	"encoding/json"
	"time"
)

// Webhook actions emitted by the platform.
const (
	WebhookMembershipValid   = "membership.went_valid"
	WebhookMembershipInvalid = "membership.went_invalid"
	WebhookPaymentSucceeded  = "payment.succeeded"
	WebhookPaymentFailed     = "payment.failed"
)

// WebhookEnvelope is a verified webhook body.
type WebhookEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// WebhookDelivery records one received webhook for deduplication. ID is the
// provider's webhook-id header.
type WebhookDelivery struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// WhopUser is the user object embedded in platform payloads.
type WhopUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// WhopPlan is the plan object embedded in platform payloads.
type WhopPlan struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	InitialPrice  float64 `json:"initial_price"`
	RenewalPeriod string  `json:"renewal_period"`
}

// WhopMembership is a membership as sent by webhooks and the memberships API.
type WhopMembership struct {
	ID                 string    `json:"id"`
	CompanyID          string    `json:"company_id,omitempty"`
	Status             string    `json:"status,omitempty"`
	Valid              bool      `json:"valid"`
	User               *WhopUser `json:"user"`
	Plan               *WhopPlan `json:"plan"`
	Amount             float64   `json:"amount,omitempty"`
	CreatedAt          *int64    `json:"created_at,omitempty"`
	RenewalPeriodStart *int64    `json:"renewal_period_start,omitempty"`
	RenewalPeriodEnd   *int64    `json:"renewal_period_end,omitempty"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end,omitempty"`
}

// WhopPayment is a payment webhook payload.
type WhopPayment struct {
	ID              string   `json:"id"`
	CompanyID       string   `json:"company_id,omitempty"`
	UserID          string   `json:"user_id"`
	FinalAmount     float64  `json:"final_amount"`
	AmountAfterFees *float64 `json:"amount_after_fees,omitempty"`
	Currency        string   `json:"currency"`
}

// Amount is the revenue to credit: amount after fees when present and
// non-zero, otherwise the final amount.
func (p WhopPayment) Amount() float64 {
	if p.AmountAfterFees != nil && *p.AmountAfterFees != 0 {
		return *p.AmountAfterFees
	}
	return p.FinalAmount
}

// WhopMembershipPage is one page of the memberships listing.
type WhopMembershipPage struct {
	Data       []WhopMembership `json:"data"`
	Pagination struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_page"`
	} `json:"pagination"`
}

// WhopCompany is the authenticated company as returned by me/company.
type WhopCompany struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Email string `json:"email,omitempty"`
}

// OAuthToken is the result of an authorization-code exchange.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// UnixTime converts an optional epoch-seconds timestamp.
func UnixTime(sec *int64) *time.Time {
	if sec == nil || *sec == 0 {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
