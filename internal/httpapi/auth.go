package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"notibot/internal/notify"
	logx "notibot/pkg/logx"
)

// requireToken gates /api/* with a bearer token compared in constant
// time. An unset token leaves the API open; the server should then be
// bound to loopback.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(s.cfg.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type webhookRequest struct {
	Message   string         `json:"message"`
	Level     string         `json:"level,omitempty"`
	Source    string         `json:"source,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// handleWebhook accepts external events. The caller authenticates with
// either the shared secret in X-Webhook-Token or an HMAC-SHA256 body
// signature in X-Webhook-Signature; both are checked in constant time
// before the payload is parsed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret == "" {
		writeError(w, http.StatusNotFound, "webhook not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if !s.verifyWebhook(r, body) {
		s.log.Warn("webhook rejected", logx.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid webhook credentials")
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	title := req.Source
	if title == "" {
		title = "Webhook Notification"
	}
	text := notify.FormatMessage(title, req.Message, req.Level, time.Now().UTC())
	s.notifier.SendToDefault(r.Context(), text, &notify.Options{ParseMode: "Markdown"})

	s.log.Info("webhook notification received",
		logx.String("source", req.Source),
		logx.String("level", req.Level))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "webhook notification queued"})
}

func (s *Server) verifyWebhook(r *http.Request, body []byte) bool {
	if tok := r.Header.Get("X-Webhook-Token"); tok != "" {
		return subtle.ConstantTimeCompare([]byte(tok), []byte(s.cfg.WebhookSecret)) == 1
	}
	if sig := r.Header.Get("X-Webhook-Signature"); sig != "" {
		sig = strings.TrimPrefix(sig, "sha256=")
		want, err := hex.DecodeString(sig)
		if err != nil {
			return false
		}
		mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
		mac.Write(body)
		return hmac.Equal(want, mac.Sum(nil))
	}
	return false
}
