package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// sseHeartbeatInterval spaces keep-alive comments so proxies do not
	// sever idle streams while image generation is still running.
	sseHeartbeatInterval = 15 * time.Second

	// sseMaxDuration bounds how long a single stream may stay open.
	sseMaxDuration = 30 * time.Minute
)

// streamEvent is a single server-sent event payload.
type streamEvent struct {
	EventType string         `json:"event_type"`
	BatchID   string         `json:"batch_id"`
	Batch     *batchResponse `json:"batch,omitempty"`
	Item      *itemResponse  `json:"item,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// streamBatch handles GET /api/batches/{batchID}/stream.
//
// It emits a "snapshot" event with the current batch, then an "update" event
// for every item state change until all items are terminal, at which point a
// final "done" event closes the stream. Heartbeat comments keep the
// connection alive between updates.
func (s *Server) streamBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := parseUUID(w, chi.URLParam(r, "batchID"), "batchID")
	if !ok {
		return
	}

	batch, ok := s.pipeline.GetLatest(batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found: only the most recent batch is retained")
		return
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
	w.WriteHeader(http.StatusOK)

	logger := s.logger.With().Str("batch_id", batchID.String()).Logger()

	// Subscribe before taking the snapshot so a state change cannot slip
	// between the two.
	updates, cancel := s.pipeline.Subscribe()
	defer cancel()

	if current, stillCurrent := s.pipeline.GetLatest(batchID); stillCurrent {
		batch = current
	}

	if err := s.sendStreamEvent(w, flusher, snapshotEvent(batch)); err != nil {
		logger.Debug().Err(err).Msg("send snapshot failed")
		return
	}

	if batch.AllTerminal() {
		_ = s.sendStreamEvent(w, flusher, doneEvent(batch, "all items terminal"))
		return
	}

	ctx := r.Context()
	deadline := time.NewTimer(sseMaxDuration)
	defer deadline.Stop()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("stream client disconnected")
			return

		case <-deadline.C:
			_ = s.sendStreamEvent(w, flusher, streamEvent{
				EventType: "timeout",
				BatchID:   batchID.String(),
				Message:   "stream duration limit reached",
				Timestamp: time.Now().UTC(),
			})
			return

		case update, open := <-updates:
			if !open {
				return
			}
			current, stillCurrent := s.pipeline.GetLatest(batchID)
			if !stillCurrent {
				_ = s.sendStreamEvent(w, flusher, streamEvent{
					EventType: "done",
					BatchID:   batchID.String(),
					Message:   "batch superseded by a newer run",
					Timestamp: time.Now().UTC(),
				})
				return
			}
			// A hint for a previous run can still be in flight right
			// after a new batch starts.
			if update.BatchID != batchID {
				continue
			}
			if update.Index >= 0 && update.Index < len(current.Items) {
				item := itemToResponse(update.Index, current.Items[update.Index])
				if err := s.sendStreamEvent(w, flusher, streamEvent{
					EventType: "update",
					BatchID:   batchID.String(),
					Item:      &item,
					Timestamp: time.Now().UTC(),
				}); err != nil {
					logger.Debug().Err(err).Msg("send update failed")
					return
				}
			}
			if current.AllTerminal() {
				_ = s.sendStreamEvent(w, flusher, doneEvent(current, "all items terminal"))
				return
			}

		case <-heartbeat.C:
			// The periodic re-read is authoritative; a missed hint does
			// not strand the stream.
			current, stillCurrent := s.pipeline.GetLatest(batchID)
			if !stillCurrent {
				_ = s.sendStreamEvent(w, flusher, streamEvent{
					EventType: "done",
					BatchID:   batchID.String(),
					Message:   "batch superseded by a newer run",
					Timestamp: time.Now().UTC(),
				})
				return
			}
			if current.AllTerminal() {
				_ = s.sendStreamEvent(w, flusher, doneEvent(current, "all items terminal"))
				return
			}
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sendStreamEvent writes a single SSE frame and flushes it.
func (s *Server) sendStreamEvent(w http.ResponseWriter, flusher http.Flusher, event streamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	flusher.Flush()
	return nil
}

func snapshotEvent(b *domain.BatchResult) streamEvent {
	resp := batchToResponse(b)
	return streamEvent{
		EventType: "snapshot",
		BatchID:   resp.BatchID,
		Batch:     &resp,
		Timestamp: time.Now().UTC(),
	}
}

func doneEvent(b *domain.BatchResult, message string) streamEvent {
	resp := batchToResponse(b)
	return streamEvent{
		EventType: "done",
		BatchID:   resp.BatchID,
		Batch:     &resp,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
