package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// MaxBodyBytes bounds the size of posted card documents.
const MaxBodyBytes = 4 << 20

// Cards is the card service exposed over HTTP.
type Cards interface {
	Ingest(ctx context.Context, external *card.Document) (*card.Document, error)
	Get(ctx context.Context, id string, format card.Format) (*card.Document, error)
	List(ctx context.Context, format card.Format) (*card.Collection, error)
	Delete(ctx context.Context, id string) error
}

// NewHandler returns the HTTP API over cards.
func NewHandler(cards Cards, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{cards: cards, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestID(), Logging(logger), Recovery(logger))

	r.Get("/healthz", h.health)
	r.Route("/api/cards", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Delete("/{id}", h.remove)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RenderError(w, &httpError{status: http.StatusNotFound, detail: "no route for " + r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		RenderError(w, &httpError{status: http.StatusMethodNotAllowed, detail: r.Method + " is not allowed on " + r.URL.Path})
	})
	return r
}

type handler struct {
	cards  Cards
	logger *zap.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status":"ok"}`)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	coll, err := h.cards.List(r.Context(), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, coll)
}

func (h *handler) show(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	doc, err := h.cards.Get(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, doc)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var external card.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&external); err != nil {
		RenderError(w, badRequest("the request body is not a JSON:API document: "+err.Error(), ""))
		return
	}

	internal, err := h.cards.Ingest(r.Context(), &external)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := h.cards.Get(r.Context(), internal.ID(), card.FormatIsolated)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/cards/"+doc.ID())
	h.render(w, r, http.StatusCreated, doc)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.cards.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) render(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := RenderDocument(w, status, payload); err != nil {
		h.fail(w, r, err)
	}
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	obj := errorObject(err)
	if obj.Status == "500" {
		h.logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	RenderError(w, err)
}

func formatParam(r *http.Request) (card.Format, error) {
	raw := r.URL.Query().Get("format")
	format, err := card.ParseFormat(raw)
	if err != nil {
		return "", badRequest("unknown card format '"+raw+"'", "format")
	}
	return format, nil
}
