package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/zeptools/gw-certs/dbg"
	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/orchestrator"
	"github.com/zeptools/gw-certs/records"
	"github.com/zeptools/gw-certs/requests"
	"github.com/zeptools/gw-certs/responses"
	"github.com/zeptools/gw-certs/throttle"
)

type SubmitRequest struct {
	RecordIDs []string       `json:"record_ids,omitempty"`
	Search    *SearchRequest `json:"search,omitempty"`
	Requester string         `json:"requester"`
}

// SearchRequest resolves record IDs through the record store
type SearchRequest struct {
	PostType string           `json:"post_type"`
	Filters  []records.Filter `json:"filters,omitempty"`
	Sort     records.Sort     `json:"sort"`
}

// SubmitJob handles POST /jobs
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if !requests.HasBody(r) {
		responses.WriteSimpleErrorJSON(w, http.StatusBadRequest, "request body required")
		return
	}
	var req SubmitRequest
	if err := json.UnmarshalRead(io.LimitReader(r.Body, MaxBodyBytes), &req); err != nil {
		responses.WriteSimpleErrorJSON(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Requester = strings.TrimSpace(req.Requester)
	if req.Requester == "" {
		responses.WriteSimpleErrorJSON(w, http.StatusBadRequest, "requester required")
		return
	}
	if !h.allow(throttle.GroupSubmit, jobs.RequesterHash(req.Requester)) {
		responses.WriteSimpleErrorJSON(w, http.StatusTooManyRequests, "too many submissions, try again later")
		return
	}

	ids := req.RecordIDs
	if req.Search != nil {
		if strings.TrimSpace(req.Search.PostType) == "" {
			responses.WriteSimpleErrorJSON(w, http.StatusBadRequest, "search.post_type required")
			return
		}
		found, err := h.Records.Find(r.Context(), req.Search.PostType, req.Search.Filters, req.Search.Sort)
		if errors.Is(err, records.ErrInvalidFilter) {
			responses.WriteSimpleErrorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			log.Printf("[ERROR][WEB] record search: %v", err)
			responses.WriteSimpleErrorJSON(w, http.StatusServiceUnavailable, "record store unavailable")
			return
		}
		ids = append(ids, found...)
	}

	jobID, err := h.Jobs.Submit(r.Context(), ids, req.Requester)
	if errors.Is(err, orchestrator.ErrNoRecords) {
		responses.WriteSimpleErrorJSON(w, http.StatusUnprocessableEntity, "no records selected")
		return
	}
	if err != nil {
		log.Printf("[ERROR][WEB] submit from %s: %v", requests.GetClientIP(r), err)
		responses.WriteSimpleErrorJSON(w, http.StatusServiceUnavailable, "cannot create job")
		return
	}
	p, err := h.Jobs.Progress(r.Context(), jobID)
	if err != nil {
		p = jobs.Progress{JobID: jobID, Status: jobs.StatusPending, Total: len(ids)}
	}
	w.Header().Set("Location", "/jobs/"+jobID)
	responses.EncodeWriteJSON(w, http.StatusAccepted, p)
}

// JobProgress handles GET /jobs/{id}
func (h *Handlers) JobProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Jobs.Progress(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		responses.WriteSimpleErrorJSON(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		log.Printf("[ERROR][WEB] progress %s: %v", r.PathValue("id"), err)
		responses.WriteSimpleErrorJSON(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	if h.Debug {
		responses.EncodeWriteJSON(w, http.StatusOK, dbg.Pack(p).With(map[string]any{
			"server_time": h.now().UTC().Format(time.RFC3339),
			"client_ip":   requests.GetClientIP(r),
			"url":         requests.FullURL(r),
		}))
		return
	}
	responses.EncodeWriteJSON(w, http.StatusOK, p)
}

// WatchJob handles GET /jobs/{id}/ws. Pushes progress on every change until the job is terminal.
func (h *Handlers) WatchJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.Jobs.Progress(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		responses.WriteSimpleErrorJSON(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		responses.WriteSimpleErrorJSON(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		log.Printf("[WARN][WEB] websocket upgrade for %s: %v", id, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// drain client frames; any read error means the client left
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval())
	defer ticker.Stop()
	var last *jobs.Progress
	for {
		if last == nil || progressChanged(*last, p) {
			if err = writeProgress(conn, p); err != nil {
				return
			}
			sent := p
			last = &sent
		}
		if p.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(p.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p, err = h.Jobs.Progress(ctx, id); err != nil {
			if ctx.Err() == nil {
				log.Printf("[WARN][WEB] websocket progress %s: %v", id, err)
				msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "job store unavailable")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			}
			return
		}
	}
}

func progressChanged(a, b jobs.Progress) bool {
	return a.Status != b.Status || a.Processed != b.Processed ||
		a.ArchiveURL != b.ArchiveURL || len(a.Errors) != len(b.Errors)
}

func writeProgress(conn *websocket.Conn, p jobs.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
