// Package votes receives third-party vote webhooks and runs the monthly
// leaderboard task.
package votes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/crosschat/internal/store"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw body.
const signatureHeader = "X-Vote-Signature"

// payload is the webhook body posted by the vote site.
type payload struct {
	User      string `json:"user"`
	Bot       string `json:"bot"`
	Type      string `json:"type"`
	IsWeekend bool   `json:"isWeekend"`
}

// Webhook records votes keyed by (user, month). Weekend votes count double.
type Webhook struct {
	votes  store.VoteStore
	secret string
	now    func() time.Time
}

// NewWebhook creates the vote receiver. An empty secret disables signature
// verification.
func NewWebhook(votes store.VoteStore, secret string) *Webhook {
	return &Webhook{votes: votes, secret: secret, now: time.Now}
}

// ServeHTTP implements http.Handler for the vote endpoint.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(rw, "read body", http.StatusBadRequest)
		return
	}

	if w.secret != "" && !w.verify(body, r.Header.Get(signatureHeader)) {
		http.Error(rw, "bad signature", http.StatusUnauthorized)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.User == "" {
		http.Error(rw, "bad payload", http.StatusBadRequest)
		return
	}

	weight := 1
	if p.IsWeekend {
		weight = 2
	}
	now := w.now().UTC()
	if err := w.votes.Record(r.Context(), store.Vote{
		UserID:  p.User,
		BotID:   p.Bot,
		Month:   now.Format("2006-01"),
		Weight:  weight,
		VotedAt: now,
	}); err != nil {
		slog.Error("vote record failed", "user", p.User, "error", err)
		http.Error(rw, "store error", http.StatusInternalServerError)
		return
	}

	slog.Info("vote recorded", "user", p.User, "weight", weight)
	rw.WriteHeader(http.StatusOK)
	fmt.Fprint(rw, "ok")
}

// verify checks the hex HMAC-SHA256 signature over the raw body.
func (w *Webhook) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(w.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
