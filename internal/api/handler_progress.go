package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adrotate/suffixcore/internal/progress"
)

// HandleProgressStream handles GET /api/v1/stream/progress/{jobRunId}
// (spec.md §4.I "Progress stream"): line-framed SSE events in order, with
// a terminal stage∈{done,error} closing the stream. When the client
// disconnects the handler stops reading and returns; the job publishing to
// the run is not cancelled and runs to completion.
func HandleProgressStream(broker *progress.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobRunID := PathParam(r, "jobRunId")
		if jobRunID == "" {
			writeInvalidArgument(w, "jobRunId: must be non-empty")
			return
		}

		events, ok := broker.Subscribe(jobRunID)
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown or expired jobRunId")
			return
		}

		flusher, canFlush := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if canFlush {
			flusher.Flush()
		}

		ctx := r.Context()
		for {
			select {
			case e, open := <-events:
				if !open {
					return
				}
				body, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", body)
				if canFlush {
					flusher.Flush()
				}
			case <-ctx.Done():
				// Client disconnected: stop consuming as soon as practical
				// (spec.md §4.I). The producer side still drains into the
				// buffered channel harmlessly until it closes on its own.
				return
			}
		}
	}
}
