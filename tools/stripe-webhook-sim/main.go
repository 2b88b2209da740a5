// Command stripe-webhook-sim posts a signed Stripe event for a booking to a locally
// running booking service.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/jdtheefirst/creator-hq-sub000/libs/config"
)

func main() {
	if err := config.Load(os.Getenv("CONFIG_FILE")); err != nil {
		fatal(err.Error())
	}
	var (
		baseURL   = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType   = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "checkout.session.completed, checkout.session.expired or charge.refunded")
		bookingID = flag.String("booking-id", config.String("BOOKING_ID", ""), "booking_id metadata")
		sessionID = flag.String("session-id", config.String("SESSION_ID", ""), "checkout session id (defaults to a generated one)")
		secret    = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*bookingID) == "" {
		fatal("BOOKING_ID is required")
	}

	now := time.Now().UTC()
	if *sessionID == "" {
		*sessionID = fmt.Sprintf("cs_test_%d", now.UnixNano())
	}
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, *bookingID, *sessionID)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, bookingID, sessionID string) ([]byte, error) {
	metadata := map[string]any{"booking_id": bookingID}
	var object map[string]any
	switch eventType {
	case "checkout.session.completed":
		object = map[string]any{
			"id":             sessionID,
			"object":         "checkout.session",
			"status":         "complete",
			"payment_status": "paid",
			"payment_intent": "pi_test_" + bookingID[:min(8, len(bookingID))],
			"metadata":       metadata,
		}
	case "checkout.session.expired":
		object = map[string]any{
			"id":             sessionID,
			"object":         "checkout.session",
			"status":         "expired",
			"payment_status": "unpaid",
			"metadata":       metadata,
		}
	case "charge.refunded":
		object = map[string]any{
			"id":       "ch_test_" + bookingID[:min(8, len(bookingID))],
			"object":   "charge",
			"refunded": true,
			"metadata": metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
