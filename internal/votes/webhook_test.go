package votes

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store/memory"
)

const testSecret = "hunter2"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, w *Webhook, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vote", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRecordsVote(t *testing.T) {
	votes := memory.NewVoteStore()
	w := NewWebhook(votes, testSecret)
	w.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	body := `{"user":"u1","bot":"b1","type":"upvote","isWeekend":false}`
	rec := post(t, w, body, sign(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", rec.Code, rec.Body.String())
	}

	top, err := votes.Top(context.Background(), "2026-08", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].UserID != "u1" || top[0].Total != 1 {
		t.Errorf("tally: %+v", top)
	}
}

func TestWebhookWeekendDoubles(t *testing.T) {
	votes := memory.NewVoteStore()
	w := NewWebhook(votes, testSecret)
	w.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	body := `{"user":"u1","isWeekend":true}`
	if rec := post(t, w, body, sign(body)); rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	top, _ := votes.Top(context.Background(), "2026-08", 10)
	if len(top) != 1 || top[0].Total != 2 {
		t.Errorf("weekend weight: %+v", top)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	w := NewWebhook(memory.NewVoteStore(), testSecret)

	body := `{"user":"u1"}`
	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing", signature: ""},
		{name: "wrong", signature: sign(body + "tampered")},
		{name: "not hex", signature: "zzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post(t, w, body, tt.signature); rec.Code != http.StatusUnauthorized {
				t.Errorf("status: %d, want 401", rec.Code)
			}
		})
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	w := NewWebhook(memory.NewVoteStore(), "")
	if rec := post(t, w, `{"user":"u1"}`, ""); rec.Code != http.StatusOK {
		t.Errorf("status: %d, want 200 when verification is disabled", rec.Code)
	}
}

func TestWebhookRejectsBadRequests(t *testing.T) {
	w := NewWebhook(memory.NewVoteStore(), testSecret)

	t.Run("get method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/vote", nil)
		rec := httptest.NewRecorder()
		w.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status: %d", rec.Code)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		body := `not json`
		if rec := post(t, w, body, sign(body)); rec.Code != http.StatusBadRequest {
			t.Errorf("status: %d", rec.Code)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		body := `{"bot":"b1"}`
		if rec := post(t, w, body, sign(body)); rec.Code != http.StatusBadRequest {
			t.Errorf("status: %d", rec.Code)
		}
	})
}
