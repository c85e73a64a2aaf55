// Package rpc exposes the engine over HTTP: a JSON operation endpoint, a
// websocket feed of layout events and the metrics endpoint.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"binmap/internal/core"
	"binmap/internal/identity"
	"binmap/internal/infra/events/wshub"
	"binmap/pkg/domain"
)

// Request headers identifying the caller.
const (
	HeaderUserID = "X-User-ID"
	HeaderOrgID  = "X-Org-ID"
)

const (
	rpcPrefix            = "/api/v1/rpc/"
	livePath             = "/api/v1/live"
	metricsPath          = "/metrics"
	opSetBackgroundImage = "set_background_image"

	maxArgsBytes  = 1 << 20
	maxImageBytes = 16 << 20
)

// CodeRuleViolation is reported when a commit is refused by a blocking rule.
const CodeRuleViolation domain.Code = "rule_violation"

// Handler routes RPC, live and metrics requests. Hub and Metrics are
// optional; their routes answer 404 when unset.
type Handler struct {
	Service   *core.Service
	Directory identity.Directory
	Hub       *wshub.Hub
	Metrics   http.Handler
	Logger    *zap.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil || h.Directory == nil {
		writeError(w, http.StatusInternalServerError, "internal", "engine not configured", false)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case strings.HasPrefix(path, rpcPrefix):
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", false)
			return
		}
		h.handleRPC(w, r, strings.TrimPrefix(path, rpcPrefix))
	case path == livePath && r.Method == http.MethodGet && h.Hub != nil:
		h.handleLive(w, r)
	case path == metricsPath && r.Method == http.MethodGet && h.Metrics != nil:
		h.Metrics.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) caller(r *http.Request) (domain.CallerContext, error) {
	user := r.Header.Get(HeaderUserID)
	org := r.Header.Get(HeaderOrgID)
	if user == "" && org == "" {
		// Browsers cannot set headers on websocket upgrades.
		user, org = r.URL.Query().Get("user_id"), r.URL.Query().Get("org_id")
	}
	return h.Directory.Resolve(r.Context(), user, org)
}

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request, name string) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	if name == opSetBackgroundImage {
		h.handleBackgroundUpload(w, r, caller)
		return
	}
	op, ok := operations[name]
	if !ok {
		writeError(w, http.StatusNotFound, string(domain.CodeNotFound), fmt.Sprintf("unknown operation %q", name), false)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgsBytes))
	if err != nil {
		h.fail(w, name, domain.Validation("read arguments: %v", err))
		return
	}
	result, err := op(r.Context(), h.Service, caller, raw)
	if err != nil {
		h.fail(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleBackgroundUpload takes the image as the raw request body with the
// blueprint id in the query string.
func (h *Handler) handleBackgroundUpload(w http.ResponseWriter, r *http.Request, caller domain.CallerContext) {
	id := r.URL.Query().Get("blueprint_id")
	if id == "" {
		h.fail(w, opSetBackgroundImage, domain.Validation("blueprint_id query parameter required"))
		return
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		h.fail(w, opSetBackgroundImage, domain.Validation("content type %q is not an image", contentType))
		return
	}
	bp, err := h.Service.SetBackgroundImage(r.Context(), caller, id, http.MaxBytesReader(w, r.Body, maxImageBytes), contentType)
	if err != nil {
		h.fail(w, opSetBackgroundImage, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": bp})
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		h.fail(w, "live", err)
		return
	}
	if err := domain.RequireRole(caller, "", domain.MinViewRole); err != nil {
		h.fail(w, "live", err)
		return
	}
	h.Hub.Serve(w, r, caller.OrgID)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, code, retryable := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error("rpc failed", zap.String("operation", op), zap.String("code", code), zap.Error(err))
	}
	body := errorBody{Code: code, Message: err.Error(), Retryable: retryable}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Blocking = de.Blocking
		if de.Code == domain.CodeStorage {
			body.Message = de.Message
		}
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// classify maps an engine error to an HTTP status and wire code.
func classify(err error) (int, string, bool) {
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		return http.StatusConflict, string(CodeRuleViolation), false
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, "internal", false
	}
	switch de.Code {
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized, string(de.Code), false
	case domain.CodeForbidden:
		return http.StatusForbidden, string(de.Code), false
	case domain.CodeNotFound:
		return http.StatusNotFound, string(de.Code), false
	case domain.CodeNotLocked, domain.CodeLockedByOther, domain.CodeInventoryConflict,
		domain.CodeGridShrinkBlocked, domain.CodeSplitBlocked, domain.CodeCrossBlueprintNotAllowed:
		return http.StatusConflict, string(de.Code), de.Retryable
	case domain.CodeValidation, domain.CodeUnsupportedRotation, domain.CodeNoSplitTarget, domain.CodeSplitTooNarrow:
		return http.StatusUnprocessableEntity, string(de.Code), false
	case domain.CodeStorage:
		return http.StatusServiceUnavailable, string(de.Code), de.Retryable
	}
	return http.StatusInternalServerError, string(de.Code), de.Retryable
}

func decodeArgs(raw []byte, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validation("invalid arguments: %v", err)
	}
	return nil
}

type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	Blocking  []string `json:"blocking,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	writeJSON(w, status, map[string]any{"error": errorBody{Code: code, Message: message, Retryable: retryable}})
}
