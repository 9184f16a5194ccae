package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jacksonlee411/recordhub/pkg/httperr"
)

const defaultMaxBodyBytes int64 = 4 << 20

const (
	PathParamEntityType = "entityType"
	PathParamID         = "id"
	PathParamLink       = "link"
	PathParamAction     = "action"
)

// RecordHTTP maps HTTP routes onto RecordController actions. Path values are
// read with http.Request.PathValue.
type RecordHTTP struct {
	Controller   RecordController
	MaxBodyBytes int64
}

// HandleCollection serves /{entityType}.
func (h RecordHTTP) HandleCollection(w http.ResponseWriter, r *http.Request) {
	action := ActionList
	if r.Method == http.MethodPost {
		action = ActionCreate
	}
	h.serve(w, r, action)
}

// HandleRecord serves /{entityType}/{id}.
func (h RecordHTTP) HandleRecord(w http.ResponseWriter, r *http.Request) {
	var action string
	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		action = ActionUpdate
	case http.MethodDelete:
		action = ActionDelete
	default:
		action = ActionRead
	}
	h.serve(w, r, action)
}

// HandleLink serves /{entityType}/{id}/{link}.
func (h RecordHTTP) HandleLink(w http.ResponseWriter, r *http.Request) {
	var action string
	switch r.Method {
	case http.MethodPost:
		action = ActionCreateLink
	case http.MethodDelete:
		action = ActionRemoveLink
	default:
		action = ActionListLinked
	}
	h.serve(w, r, action)
}

// HandleSubscription serves /{entityType}/{id}/subscription.
func (h RecordHTTP) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	action := ActionFollow
	if r.Method == http.MethodDelete {
		action = ActionUnfollow
	}
	h.serve(w, r, action)
}

// HandleAction serves /{entityType}/action/{action} for any method; the
// action itself rejects a wrong method.
func (h RecordHTTP) HandleAction(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, r.PathValue(PathParamAction))
}

func (h RecordHTTP) serve(w http.ResponseWriter, r *http.Request, action string) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	p := PathParams{
		EntityType: strings.TrimSpace(r.PathValue(PathParamEntityType)),
		ID:         strings.TrimSpace(r.PathValue(PathParamID)),
		Link:       strings.TrimSpace(r.PathValue(PathParamLink)),
	}
	out, err := h.Controller.Dispatch(r.Context(), action, p, body, Request{Method: r.Method, Query: r.URL.Query()})
	if err != nil {
		status, code := httperr.Status(err)
		message := err.Error()
		if code == "internal_error" {
			message = "internal error"
		}
		writeError(w, r, status, code, message)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
