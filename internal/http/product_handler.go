package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/dispatch"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/service"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

const maxBodyBytes = 1 << 20

type productResponse struct {
	Message  string            `json:"message,omitempty"`
	Product  *model.Product    `json:"product,omitempty"`
	Products *[]model.Product  `json:"products,omitempty"`
	Count    *int              `json:"count,omitempty"`
	Metadata dispatch.Metadata `json:"metadata"`
}

type errorHandler func(w http.ResponseWriter, r *http.Request, err error)

type productHandler struct {
	dispatcher Dispatcher
	onError    errorHandler
}

func newProductHandler(dispatcher Dispatcher, onError errorHandler) *productHandler {
	return &productHandler{
		dispatcher: dispatcher,
		onError:    onError,
	}
}

func (h *productHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.serve(w, r, http.StatusCreated, dispatch.Request{Kind: dispatch.KindCreate, Fields: fields})
}

func (h *productHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, dispatch.Request{Kind: dispatch.KindGet, ID: chi.URLParam(r, "id")})
}

func (h *productHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	// Optional parameters bind into pointers.
	var (
		category *string
		limit    *int
	)
	if err := runtime.BindQueryParameter("form", true, false, "category", r.URL.Query(), &category); err != nil {
		h.onError(w, r, apperr.ValidationErr.WithMsg("invalid category").WrapParent(err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		h.onError(w, r, apperr.ValidationErr.WithMsg("invalid limit").WrapParent(err))
		return
	}

	h.serve(w, r, http.StatusOK, dispatch.Request{
		Kind:     dispatch.KindList,
		Category: ptr.Deref(category),
		Limit:    ptr.Deref(limit),
	})
}

func (h *productHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.serve(w, r, http.StatusOK, dispatch.Request{Kind: dispatch.KindUpdate, ID: chi.URLParam(r, "id"), Fields: fields})
}

func (h *productHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	var version *int64
	if err := runtime.BindQueryParameter("form", true, false, "version", r.URL.Query(), &version); err != nil {
		h.onError(w, r, apperr.ValidationErr.WithMsg("invalid version").WrapParent(err))
		return
	}

	h.serve(w, r, http.StatusOK, dispatch.Request{Kind: dispatch.KindDelete, ID: chi.URLParam(r, "id"), Version: version})
}

func (h *productHandler) requireConfigured(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.dispatcher.CheckConfigured(); err != nil {
			h.onError(w, r, err)
			return
		}
		next(w, r)
	}
}

// Unknown handles any route without a product operation.
func (h *productHandler) Unknown(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, dispatch.Request{Kind: dispatch.Kind(r.Method + " " + r.URL.Path)})
}

func (h *productHandler) serve(w http.ResponseWriter, r *http.Request, status int, req dispatch.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	body := productResponse{
		Message:  res.Message,
		Product:  res.Product,
		Count:    res.Count,
		Metadata: res.Metadata,
	}
	if req.Kind == dispatch.KindList {
		body.Products = &res.Products
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(body)
}

// decodeFields reads the JSON body. An empty body yields no fields.
func decodeFields(r *http.Request) (service.ProductFields, error) {
	var fields service.ProductFields

	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&fields)
	if err != nil && !errors.Is(err, io.EOF) {
		return service.ProductFields{}, apperr.ValidationErr.WithMsg("invalid request body").WrapParent(err)
	}
	return fields, nil
}
