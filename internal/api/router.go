package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/journal"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/journal", s.handleListJournal)
		r.Put("/groups/{addr}/{leaf}", s.handleControl)
	})

	return r
}

// handleHealth returns the bridge health in the same shape as the MQTT
// health message.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	msg := asb.NewHealthMessage(s.bridgeID, s.version, s.status.Status(), s.startTime, time.Now())

	status := http.StatusOK
	if msg.Status != asb.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, msg)
}

// handleListJournal returns journaled frames.
//
// Query parameters: direction (rx|tx), source (hex), since (RFC3339),
// limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "frame journal is disabled")
		return
	}

	filter, err := parseJournalFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	res, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseJournalFilter(r *http.Request) (journal.Filter, error) {
	q := r.URL.Query()
	var f journal.Filter

	switch d := asb.Direction(q.Get("direction")); d {
	case "", asb.DirectionRx, asb.DirectionTx:
		f.Direction = d
	default:
		return f, fmt.Errorf("direction must be rx or tx")
	}

	if v := q.Get("source"); v != "" {
		src, err := strconv.ParseUint(v, 16, 16)
		if err != nil {
			return f, fmt.Errorf("source must be a hex address")
		}
		addr := uint16(src)
		f.Source = &addr
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be an RFC3339 timestamp")
		}
		f.Since = t
	}

	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, fmt.Errorf("%s must be an integer", name)
			}
			*dst = n
		}
	}

	return f, nil
}

// controlRequest is the body of PUT /groups/{addr}/{leaf}.
type controlRequest struct {
	Value *int `json:"value"`
}

// handleControl sets a switch or level through the relay, exactly as an
// MQTT message on <prefix>/<addr>/set/<leaf> would.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "control is not available")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "value is required")
		return
	}

	topic := s.prefix + "/" + chi.URLParam(r, "addr") + "/set/" + chi.URLParam(r, "leaf")
	payload := []byte(strconv.Itoa(*req.Value))

	if err := s.control.HandleControl(topic, payload); err != nil {
		switch {
		case errors.Is(err, asb.ErrInvalidTopic), errors.Is(err, asb.ErrInvalidPayload):
			writeError(w, http.StatusBadRequest, codeInvalid, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic": topic,
		"value": *req.Value,
	})
}
