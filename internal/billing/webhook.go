// Package billing ingests subscription webhooks from the payment
// provider and mirrors subscription state into the store.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daybook/api/internal/store"
)

const (
	signatureHeader  = "Stripe-Signature"
	defaultTolerance = 300 * time.Second
	maxBodyBytes     = 1 << 20
)

type subscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub store.Subscription) error
	MarkSubscriptionCanceled(ctx context.Context, subscriptionID string) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
}

// WebhookHandler verifies and applies provider webhook events. Unknown
// event types are acknowledged so the provider stops retrying them.
type WebhookHandler struct {
	store     subscriptionStore
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookHandler(subscriptions subscriptionStore, secret string) *WebhookHandler {
	return &WebhookHandler{
		store:     subscriptions,
		secret:    secret,
		tolerance: defaultTolerance,
		now:       time.Now,
	}
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type checkoutObject struct {
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	CustomerEmail string `json:"customer_email"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "could not read body")
		return
	}
	defer r.Body.Close()

	if !h.verifySignature(r.Header.Get(signatureHeader), body) {
		writeWebhookError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		writeWebhookError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	if err := h.apply(r.Context(), evt); err != nil {
		log.Printf(`{"component":"billing","event_id":%q,"event_type":%q,"error":%q}`, evt.ID, evt.Type, err.Error())
		writeWebhookError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"received": true})
}

func (h *WebhookHandler) apply(ctx context.Context, evt event) error {
	switch evt.Type {
	case "checkout.session.completed":
		var object checkoutObject
		if err := json.Unmarshal(evt.Data.Object, &object); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		if object.Subscription == "" {
			return nil
		}
		userID := ""
		if object.CustomerEmail != "" {
			if user, err := h.store.GetUserByEmail(ctx, object.CustomerEmail); err == nil {
				userID = user.ID
			}
		}
		return h.store.UpsertSubscription(ctx, store.Subscription{
			ID:         object.Subscription,
			CustomerID: object.Customer,
			UserID:     userID,
			Status:     "active",
		})

	case "customer.subscription.created", "customer.subscription.updated":
		var object subscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &object); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		sub := store.Subscription{
			ID:                object.ID,
			CustomerID:        object.Customer,
			Status:            object.Status,
			CancelAtPeriodEnd: object.CancelAtPeriodEnd,
		}
		if len(object.Items.Data) > 0 {
			sub.PriceID = object.Items.Data[0].Price.ID
		}
		if object.CurrentPeriodEnd > 0 {
			end := time.Unix(object.CurrentPeriodEnd, 0)
			sub.CurrentPeriodEnd = &end
		}
		return h.store.UpsertSubscription(ctx, sub)

	case "customer.subscription.deleted":
		var object subscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &object); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return h.store.MarkSubscriptionCanceled(ctx, object.ID)
	}

	// Unknown event types are acknowledged without side effects.
	return nil
}

// verifySignature checks the t=...,v1=... signature header: HMAC-SHA256
// over "<timestamp>.<body>" with the shared secret, plus a timestamp
// tolerance window against replay.
func (h *WebhookHandler) verifySignature(header string, body []byte) bool {
	if strings.TrimSpace(h.secret) == "" {
		return false
	}

	timestamp, signatures := parseSignatureHeader(header)
	timestampUnix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || timestampUnix <= 0 || len(signatures) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	signedPayload := append([]byte(timestamp), '.')
	signedPayload = append(signedPayload, body...)
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	valid := false
	for _, sigHex := range signatures {
		decoded, err := hex.DecodeString(sigHex)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	if h.tolerance > 0 {
		skew := h.now().UTC().Unix() - timestampUnix
		if skew < 0 {
			skew = -skew
		}
		if time.Duration(skew)*time.Second > h.tolerance {
			return false
		}
	}
	return true
}

func parseSignatureHeader(header string) (timestamp string, v1 []string) {
	for _, part := range strings.Split(header, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		if key == "t" && timestamp == "" {
			timestamp = value
			continue
		}
		if key == "v1" && value != "" {
			v1 = append(v1, value)
		}
	}
	return timestamp, v1
}

func writeWebhookError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
