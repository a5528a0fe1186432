package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"scholarchat-backend/internal/middleware"
	"scholarchat-backend/internal/models"
	"scholarchat-backend/internal/relay"
)

const maxChatBodyBytes = 1 << 20

// TurnRunner runs one chat turn. *relay.Relay satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, requestID string, req models.ChatRequest, emit relay.EmitFunc) error
}

type ChatHandler struct {
	turns TurnRunner
	log   *slog.Logger
}

func NewChatHandler(turns TurnRunner, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{turns: turns, log: logger}
}

// Chat streams one turn as server-sent events, one data frame per event.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResp("STREAMING_UNSUPPORTED", "Streaming is not supported", r))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event models.StreamEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	requestID := middleware.GetRequestID(r.Context())
	if err := h.turns.Run(r.Context(), requestID, req, emit); err != nil {
		if errors.Is(err, context.Canceled) {
			h.log.Info("client disconnected mid-turn", "request_id", requestID)
			return
		}
		h.log.Warn("chat stream ended early", "request_id", requestID, "err", err)
	}
}
