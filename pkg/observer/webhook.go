package observer

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Webhook delivery is out of core scope (4.10) — this is a minimal
// best-effort sink, not the durable delivery queue a production
// deployment would need (that would own its own retry ledger and is
// future work). No HTTP client library appears in this codebase's
// dependency surface, so net/http is used directly rather than adding
// one just for this.
type Webhook struct {
	url    string
	client *http.Client
	logger *log.Logger
}

// NewWebhook builds a Subscriber that POSTs every Event as JSON to url.
func NewWebhook(url string, logger *log.Logger) *Webhook {
	if logger == nil {
		logger = log.New(log.Writer(), "[observer.Webhook] ", log.LstdFlags)
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	EntityType      string    `json:"entityType"`
	EntityID        string    `json:"entityId"`
	OldState        string    `json:"oldState"`
	NewState        string    `json:"newState"`
	PaymentSourceID string    `json:"paymentSourceId"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notify implements Subscriber. Delivery is at-most-once and best-effort:
// a failed POST is logged and dropped, never retried by this sink.
func (w *Webhook) Notify(ev Event) {
	body, err := json.Marshal(webhookPayload{
		EntityType:      string(ev.EntityType),
		EntityID:        ev.EntityID.String(),
		OldState:        ev.OldState,
		NewState:        ev.NewState,
		PaymentSourceID: ev.PaymentSourceID.String(),
		Timestamp:       ev.Timestamp,
	})
	if err != nil {
		w.logger.Printf("marshal event %s/%s: %v", ev.EntityType, ev.EntityID, err)
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Printf("deliver event %s/%s: %v", ev.EntityType, ev.EntityID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Printf("webhook rejected event %s/%s: status %d", ev.EntityType, ev.EntityID, resp.StatusCode)
	}
}
