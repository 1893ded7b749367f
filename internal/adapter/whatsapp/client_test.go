package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody textMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{
		APIVersion:    "v18.0",
		PhoneNumberID: "123456",
		Token:         "secret-token",
		BaseURL:       srv.URL,
	}, nil)

	if err := c.Send(context.Background(), "15551234567", "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/v18.0/123456/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.MessagingProduct != "whatsapp" || gotBody.To != "15551234567" ||
		gotBody.Type != "text" || gotBody.Text.Body != "hello" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSend_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{
		APIVersion:    "v18.0",
		PhoneNumberID: "123456",
		Token:         "bad",
		BaseURL:       srv.URL,
	}, nil)

	if err := c.Send(context.Background(), "15551234567", "hello"); err == nil {
		t.Fatal("expected error on 401")
	}
}
