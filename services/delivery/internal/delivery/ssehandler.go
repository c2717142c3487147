package delivery

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// StreamOrders pushes the requested view as server-sent events: one
// "orders" event with the full projection after every change.
func (h *Handler) StreamOrders(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	project, err := h.projectionFor(r.Context(), s, r.URL.Query())
	if err != nil {
		h.respondViewErr(w, log, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	log.Info("new order stream", "subscriber_id", subscriberID, "actor_id", s.ActorID, "role", string(s.Role))

	snapshots, cancel := h.feed.Subscribe(r.Context(), project)
	defer cancel()

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	flush(w)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("order stream client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush(w)

		case orders, ok := <-snapshots:
			if !ok {
				log.Info("order stream closed", "subscriber_id", subscriberID)
				return
			}
			data, err := json.Marshal(orders)
			if err != nil {
				log.Error("cannot encode order snapshot", "error", err)
				continue
			}
			sendSSEEvent(w, "orders", data)
		}
	}
}

// sendSSEEvent writes one event. data is single-line JSON.
func sendSSEEvent(w http.ResponseWriter, eventType string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
