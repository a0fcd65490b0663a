// Package handler provides the HTTP handlers for the items server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stevemurr/simple-items-server/schema"
	"github.com/stevemurr/simple-items-server/store"
)

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store  store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(s store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: s, logger: logger, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("POST /items", h.createItem)
	h.mux.HandleFunc("GET /items", h.listItems)
	h.mux.HandleFunc("GET /items/{id}", h.resolveItem(h.getItem))
	h.mux.HandleFunc("PUT /items/{id}", h.resolveItem(h.updateItem))
	h.mux.HandleFunc("DELETE /items/{id}", h.resolveItem(h.deleteItem))
}

// ---------- helpers ----------

// errorBody is the shape of every 4xx/5xx response.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

const invalidItem = "invalid item"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, errs map[string]string) {
	writeJSON(w, status, errorBody{Message: msg, Errors: errs})
}

// readJSON decodes a JSON object body. An empty body is an empty object.
func readJSON(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var v any
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch doc := v.(type) {
	case map[string]any:
		return doc, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, errors.New("must be a JSON object")
}

// fail is the error boundary: unexpected failures are logged and answered
// with a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal server error", nil)
}

// storeError answers a store error with the matching status.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid *store.InvalidIDError
		ve      schema.ValidationErrors
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalidItem, map[string]string{"id": "is not a valid " + invalid.Kind})
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, invalidItem, ve.Map())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, invalidItem, map[string]string{"id": "is unknown"})
	default:
		h.fail(w, r, err)
	}
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Simple Items Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- item resolution ----------

type itemKey struct{}

// ItemFrom returns the item resolveItem attached to ctx.
func ItemFrom(ctx context.Context) store.Item {
	it, _ := ctx.Value(itemKey{}).(store.Item)
	return it
}

// resolveItem loads the item named by the {id} path value and hands it to
// next through the request context. Malformed ids get a 400 and unknown ids a
// 404 before next runs.
func (h *Handler) resolveItem(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := h.store.FindByID(r.Context(), r.PathValue("id"))
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		if it == nil {
			writeError(w, http.StatusNotFound, invalidItem, map[string]string{"id": "is unknown"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), itemKey{}, it)))
	}
}

// ---------- items ----------

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	data, err := readJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidItem, map[string]string{"body": err.Error()})
		return
	}
	it, err := h.store.Create(r.Context(), data)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": it})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items = filterItems(items, r.URL.Query().Get("filter_by"))
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// filterItems keeps items whose isActive is exactly true ("active") or
// exactly false ("inactive"). Any other filter keeps everything.
func filterItems(items []store.Item, filter string) []store.Item {
	var want bool
	switch filter {
	case "active":
		want = true
	case "inactive":
		want = false
	default:
		if items == nil {
			return []store.Item{}
		}
		return items
	}
	out := make([]store.Item, 0, len(items))
	for _, it := range items {
		if active, ok := it.IsActive(); ok && active == want {
			out = append(out, it)
		}
	}
	return out
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"item": ItemFrom(r.Context())})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidItem, map[string]string{"body": err.Error()})
		return
	}
	data, err := updateData(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, invalidItem, map[string]string{"item": err.Error()})
		return
	}
	it, err := h.store.Update(r.Context(), r.PathValue("id"), data)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": it})
}

// updateData picks the fields to merge from a PUT body. A body with an item
// key carries them there (null means none); any other body is the data itself.
func updateData(body map[string]any) (map[string]any, error) {
	raw, wrapped := body["item"]
	if !wrapped {
		return body, nil
	}
	switch inner := raw.(type) {
	case map[string]any:
		return inner, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, errors.New("must be a JSON object")
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": ItemFrom(r.Context())})
}
