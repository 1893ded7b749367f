// Package whatsapp sends text messages through the WhatsApp Cloud API
// (Meta Graph API). One HTTP POST per message, bearer-token authenticated.
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

const defaultBaseURL = "https://graph.facebook.com"

type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	phoneNumberID string
	token         string
	logger        *slog.Logger
}

type Config struct {
	APIVersion    string
	PhoneNumberID string
	Token         string

	// BaseURL overrides the Graph API host, used by tests.
	BaseURL string

	// Timeout bounds each send so a slow Graph API call never holds the
	// inbound webhook open indefinitely.
	Timeout time.Duration
}

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textContent `json:"text"`
}

type textContent struct {
	Body string `json:"body"`
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		apiVersion:    cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.Token,
		logger:        logger,
	}
}

// Send delivers one text message. A non-200 response is an error; the body
// is logged server-side but never included in user-facing replies.
func (c *Client) Send(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               recipientID,
		Type:             "text",
		Text:             textContent{Body: text},
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("whatsapp send rejected",
			"recipient", recipientID, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("send message: status %d", resp.StatusCode)
	}
	return nil
}
