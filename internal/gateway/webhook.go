// ABOUTME: WhatsApp Cloud API webhook endpoints
// ABOUTME: Verification handshake, inbound message ingestion and cron trigger

package gateway

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// webhookBodyLimit caps how much of a webhook payload is read. Real
// message notifications are far smaller.
const webhookBodyLimit = 1 << 20

// handleWebhook dispatches the webhook endpoint by method: GET is Meta's
// verification handshake, POST is message ingestion.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleWebhookVerify(w, r)
	case http.MethodPost:
		g.handleWebhookIngest(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleWebhookVerify implements the subscription handshake: echo the
// challenge back when the verify token matches, 403 otherwise.
func (g *Gateway) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(g.config.WhatsApp.VerifyToken)) != 1 {
		g.logger.Warn("webhook verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	g.logger.Info("webhook verified")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleWebhookIngest processes one inbound message notification. The
// platform retries non-200 responses aggressively, so payloads that carry
// no text message (statuses, media, malformed bodies) are acknowledged
// with 200 and dropped; only a persistence failure surfaces as 500.
func (g *Gateway) handleWebhookIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		g.logger.Warn("reading webhook body failed", "error", err)
		g.webhookAck(w)
		return
	}

	message := gjson.GetBytes(body, "entry.0.changes.0.value.messages.0")
	if !message.Exists() {
		// Status updates and other non-message notifications land here
		g.logger.Debug("webhook payload carried no message")
		g.webhookAck(w)
		return
	}

	from := message.Get("from").String()
	text := message.Get("text.body").String()
	if from == "" || text == "" {
		g.logger.Debug("webhook message without text content", "type", message.Get("type").String())
		g.webhookAck(w)
		return
	}

	if err := g.service.Ingest(r.Context(), from, text); err != nil {
		g.logger.Error("webhook ingestion failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.webhookAck(w)
}

// webhookAck sends the uniform 200 acknowledgement.
func (g *Gateway) webhookAck(w http.ResponseWriter) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTriggerDailyTask handles POST /trigger-daily-task: a manual
// trigger for the reminder sweep, guarded by the shared cron secret.
func (g *Gateway) handleTriggerDailyTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	secret := g.config.Reminders.Secret
	if secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Cron-Secret")), []byte(secret)) != 1 {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}

	sent, err := g.sweeper.Run(r.Context())
	if err != nil {
		g.logger.Error("manual reminder sweep failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
