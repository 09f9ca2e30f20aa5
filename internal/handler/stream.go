package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/pkg/logger"
	"github.com/capitalize-ai/support-router/pkg/metrics"
)

// ReplyFeed is the durable log of replies pushed to web sessions, see nats.StreamManager.
type ReplyFeed interface {
	Replies(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.OutboundMessage, uint64, bool, error)
	WatchReplies(ctx context.Context, sessionID string, afterSequence uint64, fn func(model.OutboundMessage)) error
}

const replayBatch = 50

// StreamHandler streams staff replies to web clients over SSE.
type StreamHandler struct {
	service   *service.Service
	feed      ReplyFeed
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler. A nil feed disables streaming.
func NewStreamHandler(svc *service.Service, feed ReplyFeed, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service:   svc,
		feed:      feed,
		heartbeat: 30 * time.Second,
		logger:    log,
	}
}

// ReplayCompleteEvent marks the end of the replayed backlog.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	MessageCount int    `json:"message_count"`
}

// HeartbeatEvent keeps idle connections open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a stream failure to the client.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream handles GET /api/sessions/{id}/stream
// Supports ?after_sequence=N for resuming from a specific point.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming not available")
		return
	}

	if _, err := h.service.Get(ctx, sessionID); err != nil {
		writeServiceError(w, r, h.logger, err, "open stream")
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSequence = seq
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithSession(sessionID)

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"session_id": sessionID,
	})

	lastSequence := afterSequence
	var totalReplayed int
	for {
		replies, last, hasMore, err := h.feed.Replies(ctx, sessionID, lastSequence, replayBatch)
		if err != nil {
			log.Error("failed to replay replies", zap.Error(err))
			sendSSEEvent(w, flusher, "error", &ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay messages",
			})
			return
		}
		for _, reply := range replies {
			sendSSEEvent(w, flusher, "message", reply)
			totalReplayed++
		}
		lastSequence = last
		if !hasMore || ctx.Err() != nil {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		MessageCount: totalReplayed,
	})

	live := make(chan model.OutboundMessage, 16)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- h.feed.WatchReplies(watchCtx, sessionID, lastSequence, func(reply model.OutboundMessage) {
			select {
			case live <- reply:
			case <-watchCtx.Done():
			}
		})
	}()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected", zap.Int("messages_replayed", totalReplayed))
			return

		case err := <-watchErr:
			if err != nil {
				log.Error("reply watch failed", zap.Error(err))
				sendSSEEvent(w, flusher, "error", &ErrorEvent{
					Code:    "stream_error",
					Message: "Live updates interrupted",
				})
			}
			return

		case reply := <-live:
			sendSSEEvent(w, flusher, "message", reply)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
