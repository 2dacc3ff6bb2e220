package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/speakuplabs/speakupd/internal/history"
	"github.com/speakuplabs/speakupd/internal/message"
)

type speakRequest struct {
	Text      string  `json:"text"`
	Project   string  `json:"project,omitempty"`
	Tone      string  `json:"tone,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Interrupt bool    `json:"interrupt,omitempty"`
	Announce  string  `json:"announce,omitempty"`
}

type speakResponse struct {
	Success       bool  `json:"success"`
	MessageID     int64 `json:"message_id"`
	QueuePosition int   `json:"queue_position"`
}

type stopResponse struct {
	Success        bool    `json:"success"`
	StoppedCurrent bool    `json:"stopped_current"`
	Cleared        []int64 `json:"cleared"`
}

type statusResponse struct {
	Playing     *message.Message  `json:"playing"`
	Queue       []message.Message `json:"queue"`
	QueueLength int               `json:"queue_length"`
}

type historyResponse struct {
	History []history.Record `json:"history"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	id, pos, err := s.coord.Speak(r.Context(), message.Submit{
		Text:      req.Text,
		Project:   req.Project,
		Tone:      message.Tone(req.Tone),
		Speed:     req.Speed,
		Interrupt: req.Interrupt,
		Announce:  message.AnnounceMode(req.Announce),
	})
	if err != nil {
		var ve *message.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Reason, ve.Field)
			return
		}
		s.log.Error("speak failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue message", "")
		return
	}

	writeJSON(w, http.StatusOK, speakResponse{Success: true, MessageID: id, QueuePosition: pos})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	cleared, stopped, err := s.coord.StopAll(r.Context())
	if err != nil {
		s.log.Error("stop-all failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stop playback", "")
		return
	}
	if cleared == nil {
		cleared = []int64{}
	}
	writeJSON(w, http.StatusOK, stopResponse{Success: true, StoppedCurrent: stopped, Cleared: cleared})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	current, pending := s.coord.Status()
	if pending == nil {
		pending = []message.Message{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Playing:     current,
		Queue:       pending,
		QueueLength: len(pending),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500", "limit")
			return
		}
		limit = n
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history", "")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{History: records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	if s.events != nil {
		health["events_connected"] = s.events.Healthy()
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Field: field})
}
