// ABOUTME: Outbound messaging client for the WhatsApp Business (Graph) API
// ABOUTME: Sends free-form text messages to patient phone numbers

package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIBase = "https://graph.facebook.com/v20.0"

// SendError carries enough detail from a failed delivery to log. The rest
// of the system treats every send failure uniformly as "could not deliver".
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("whatsapp send failed: status %d: %s", e.StatusCode, e.Body)
}

// Client sends text messages through the WhatsApp Graph API.
type Client struct {
	apiBase       string
	token         string
	phoneNumberID string
	httpClient    *http.Client
	logger        *slog.Logger
}

// Config holds the messaging-channel settings.
type Config struct {
	Token         string
	PhoneNumberID string
	APIBase       string
	Timeout       time.Duration
}

// NewClient creates a WhatsApp client. The timeout bounds every send so a
// slow Graph API cannot stall ingestion indefinitely.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		apiBase:       apiBase,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger.With("component", "whatsapp"),
	}
}

// textPayload is the Graph API request body for a free-form text message.
type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers a text message to the given phone number. A non-2xx
// response is returned as a *SendError with status and body for logging.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.phoneNumberID)

	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SendError{StatusCode: resp.StatusCode, Body: string(detail)}
	}

	c.logger.Debug("message sent", "to", to)
	return nil
}
