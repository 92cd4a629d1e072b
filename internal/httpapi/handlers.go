package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notibot/internal/notify"
	"notibot/internal/scheduler"
	"notibot/internal/subscription"
	logx "notibot/pkg/logx"
)

const maxBodyBytes = 64 << 10

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Success: false, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.notifier.TestConnectivity(r.Context())
	status := http.StatusOK
	state := "healthy"
	if !connected {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	writeJSON(w, status, map[string]any{
		"status":        state,
		"bot_connected": connected,
		"monitoring":    s.monitor.Running(),
	})
}

type notifyRequest struct {
	Message               string  `json:"message"`
	ChatID                int64   `json:"chat_id,omitempty"`
	ChatIDs               []int64 `json:"chat_ids,omitempty"`
	ParseMode             string  `json:"parse_mode,omitempty"`
	DisableWebPagePreview *bool   `json:"disable_web_page_preview,omitempty"`
}

type sendResult struct {
	ChatID  int64 `json:"chat_id"`
	Success bool  `json:"success"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ParseMode != "" && !validParseMode(req.ParseMode) {
		writeError(w, http.StatusBadRequest, "invalid parse_mode")
		return
	}

	targets := req.ChatIDs
	if req.ChatID != 0 {
		targets = []int64{req.ChatID}
	}
	if len(targets) == 0 {
		targets = s.notifier.DefaultRecipients()
	}
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, "no chat ids specified and no defaults configured")
		return
	}
	for _, id := range targets {
		if id == 0 {
			writeError(w, http.StatusBadRequest, "invalid chat_id: 0")
			return
		}
	}

	opt := &notify.Options{ParseMode: req.ParseMode, DisablePreview: req.DisableWebPagePreview}
	oks := s.notifier.SendToMany(r.Context(), req.Message, targets, opt)

	results := make([]sendResult, len(targets))
	sent := 0
	for i, ok := range oks {
		results[i] = sendResult{ChatID: targets[i], Success: ok}
		if ok {
			sent++
		}
	}

	status := http.StatusOK
	if sent == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, apiResponse{
		Success: sent > 0,
		Message: fmt.Sprintf("sent to %d/%d chats", sent, len(targets)),
		Data:    map[string]any{"results": results},
	})
}

type alertRequest struct {
	Topic   string `json:"topic"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	topic := subscription.Topic(req.Topic)
	if !topic.Valid() {
		writeError(w, http.StatusBadRequest, "invalid topic: "+req.Topic)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	subscribers := s.registry.Subscribers(topic)
	if len(subscribers) == 0 {
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "no subscribers for topic"})
		return
	}

	title := req.Title
	if title == "" {
		title = "Alert"
	}
	text := notify.FormatMessage(title, req.Message, req.Level, time.Now().UTC())

	oks := s.notifier.SendToMany(r.Context(), text, subscribers, &notify.Options{ParseMode: "Markdown"})
	sent := 0
	for _, ok := range oks {
		if ok {
			sent++
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: sent > 0,
		Message: fmt.Sprintf("alerted %d/%d subscribers", sent, len(subscribers)),
	})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	subs := make(map[string][]string, len(all))
	for id, topics := range all {
		names := make([]string, len(topics))
		for i, t := range topics {
			names[i] = string(t)
		}
		subs[strconv.FormatInt(id, 10)] = names
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: map[string]any{
			"subscriptions": subs,
			"stats":         s.registry.Stats(),
		},
	})
}

type subscribeRequest struct {
	UserID int64  `json:"user_id"`
	Topic  string `json:"topic"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !s.registry.Subscribe(req.UserID, subscription.Topic(req.Topic)) {
		writeError(w, http.StatusBadRequest, "invalid topic: "+req.Topic)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "subscribed"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	topic := subscription.Topic(chi.URLParam(r, "topic"))
	if !s.registry.Unsubscribe(userID, topic) {
		writeError(w, http.StatusNotFound, "no such subscription")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "unsubscribed"})
}

func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]any{"metrics": s.monitor.CurrentMetrics(r.Context())},
	})
}

type reportRequest struct {
	ChatID int64 `json:"chat_id,omitempty"`
}

func (s *Server) handleSystemReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	s.monitor.SendSystemReport(r.Context(), req.ChatID)
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "system report sent"})
}

type scheduleRequest struct {
	JobID   string      `json:"job_id"`
	Message string      `json:"message"`
	ChatIDs []int64     `json:"chat_ids,omitempty"`
	Trigger triggerSpec `json:"trigger"`
}

// triggerSpec is the wire form; the tagged spec is turned into the
// concrete trigger kind at this boundary.
type triggerSpec struct {
	Type string `json:"type"`

	// cron fields
	Minute string `json:"minute,omitempty"`
	Hour   string `json:"hour,omitempty"`
	Day    string `json:"day,omitempty"`
	Month  string `json:"month,omitempty"`
	Dow    string `json:"day_of_week,omitempty"`

	// interval
	Every string `json:"every,omitempty"`

	// date
	At time.Time `json:"at,omitempty"`
}

func (t triggerSpec) build() (scheduler.Trigger, error) {
	switch t.Type {
	case "cron":
		return scheduler.CronTrigger{
			Minute: t.Minute, Hour: t.Hour, Dom: t.Day, Month: t.Month, Dow: t.Dow,
		}, nil
	case "interval":
		d, err := time.ParseDuration(t.Every)
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q", t.Every)
		}
		return scheduler.IntervalTrigger{Every: d}, nil
	case "date":
		return scheduler.DateTrigger{At: t.At}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", t.Type)
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	for _, id := range req.ChatIDs {
		if id == 0 {
			writeError(w, http.StatusBadRequest, "invalid chat_id: 0")
			return
		}
	}
	trig, err := req.Trigger.build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.sched.Schedule(req.JobID, req.Message, req.ChatIDs, trig) {
		writeError(w, http.StatusBadRequest, "failed to schedule job")
		return
	}
	s.log.Info("job scheduled via api", logx.String("job_id", req.JobID))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "scheduled " + req.JobID})
}

func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !s.sched.Unschedule(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "unscheduled " + jobID})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]any{"jobs": s.sched.Jobs()},
	})
}

func validParseMode(mode string) bool {
	switch mode {
	case "Markdown", "MarkdownV2", "HTML":
		return true
	}
	return false
}
