// Package handler exposes the bot's HTTP surface: the WhatsApp webhook
// (verification handshake + message delivery) and the home/health pages.
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"whatstock/internal/core/service"
	"whatstock/internal/port"
)

const maxBodyBytes = 1 << 20

// --- WhatsApp webhook payload ---

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value ChangeValue `json:"value"`
	Field string      `json:"field"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
}

type Contact struct {
	Profile ProfileInfo `json:"profile"`
	WaID    string      `json:"wa_id"`
}

type ProfileInfo struct {
	Name string `json:"name"`
}

type Message struct {
	From      string       `json:"from"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *TextContent `json:"text,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type WebhookHandler struct {
	service     *service.BotService
	notifier    port.Notifier
	verifyToken string
	appSecret   string
	logger      *slog.Logger
	startedAt   time.Time

	// processTimeout bounds the parse-execute-reply path for one message
	// so a stuck backend never wedges the webhook worker.
	processTimeout time.Duration
}

func New(svc *service.BotService, notifier port.Notifier, verifyToken, appSecret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		service:        svc,
		notifier:       notifier,
		verifyToken:    verifyToken,
		appSecret:      appSecret,
		logger:         logger,
		startedAt:      time.Now(),
		processTimeout: 30 * time.Second,
	}
}

func (h *WebhookHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", h.webhook)
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/", h.home)
}

func (h *WebhookHandler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// verify answers the platform's subscription handshake: echo the challenge
// when the shared verify token matches, 403 otherwise.
func (h *WebhookHandler) verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	h.logger.Warn("webhook verification failed", "mode", mode)
	http.Error(w, "verification failed", http.StatusForbidden)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" {
		if !validSignature(body, r.Header.Get("X-Hub-Signature-256"), h.appSecret) {
			h.logger.Warn("invalid webhook signature")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	// Acknowledge promptly; the platform only needs to know the delivery
	// landed, not whether downstream processing succeeded.
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			h.processValue(change.Value)
		}
	}
}

func (h *WebhookHandler) processValue(value ChangeValue) {
	for _, msg := range value.Messages {
		if msg.Type != "text" || msg.Text == nil {
			continue
		}

		name := displayName(value.Contacts, msg.From)
		h.logger.Info("processing message", "from", msg.From, "name", name)

		// Detached context: the 200 has already been written, so the
		// sender's connection state no longer matters.
		ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
		reply := h.service.HandleMessage(ctx, msg.From, name, msg.Text.Body)
		if reply != "" {
			if err := h.notifier.Send(ctx, msg.From, reply); err != nil {
				h.logger.Error("reply delivery failed", "recipient", msg.From, "err", err)
			}
		}
		cancel()
	}
}

// displayName resolves the sender's profile name, falling back to the
// phone id when the contact block is missing.
func displayName(contacts []Contact, phoneID string) string {
	for _, c := range contacts {
		if c.WaID == phoneID && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	return phoneID
}

// validSignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against an HMAC of the raw body.
func validSignature(body []byte, signature, appSecret string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func (h *WebhookHandler) home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "WhatsApp Inventory Bot Running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *WebhookHandler) health(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ItemCount(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"inventory_items": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
