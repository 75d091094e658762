package procurement

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/procurio/procurio/internal/identity"
	"github.com/procurio/procurio/internal/platform/httpx"
	"github.com/procurio/procurio/internal/shared"
)

const maxDocumentSize = 32 << 20

// Handler manages purchase request endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase request routes. The review dashboard and
// every workflow mutation beyond create are reviewer-only.
func (h *Handler) MountRoutes(r chi.Router, auth identity.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Require)
		r.Post("/requests", h.handleCreate)
		r.Get("/requests/my", h.handleListMine)
		r.Get("/requests/{id}", h.handleGet)
		r.Post("/requests/{id}/documents", h.handleAttachDocument)
		r.Get("/requests/{id}/documents/{docID}", h.handleDownloadDocument)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(identity.RoleAccountant, identity.RoleAdmin))
			r.Get("/requests", h.handleList)
			r.Get("/requests/export.csv", h.handleExportCSV)
			r.Get("/requests/{id}/reviews", h.handleListReviews)
			r.Post("/requests/{id}/status", h.handleChangeStatus)
			r.Put("/requests/{id}/items", h.handleUpdateItems)
			r.Post("/requests/{id}/comment", h.handleComment)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	var payload createRequestPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateRequestInput{
		RONumber:   payload.RONumber,
		SupplierID: payload.SupplierID,
		CustomerID: payload.CustomerID,
		VATPercent: payload.VATPercent,
		Comment:    payload.Comment,
		Items:      itemInputs(payload.Items),
	}
	if payload.Deadline != "" {
		deadline, err := time.Parse(dateLayout, payload.Deadline)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deadline must be YYYY-MM-DD")
			return
		}
		input.Deadline = deadline
	}
	pr, err := h.service.CreateRequest(r.Context(), actor, input)
	if err != nil {
		h.respondError(w, "create request", err)
		return
	}
	// re-read the aggregate so DB-assigned fields (timestamps) make it into
	// the response
	created, items, docs, err := h.service.GetRequest(r.Context(), pr.ID)
	if err != nil {
		h.respondError(w, "load created request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestResponse(created, items, docs))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	pr, items, docs, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.respondError(w, "get request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(pr, items, docs))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters := h.listFilters(r)
	page, err := h.service.ListRequests(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list requests", err)
		return
	}
	resp := listResponse{Items: make([]summaryResponse, 0, len(page.Items)), Total: page.Total}
	for _, item := range page.Items {
		resp.Items = append(resp.Items, toSummaryResponse(item))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	items, err := h.service.ListMyRequests(r.Context(), actor.ID)
	if err != nil {
		h.respondError(w, "list own requests", err)
		return
	}
	resp := make([]summaryResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toSummaryResponse(item))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	reviews, err := h.service.ListReviews(r.Context(), id)
	if err != nil {
		h.respondError(w, "list reviews", err)
		return
	}
	resp := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		resp = append(resp, reviewResponse{
			ID:      review.ID,
			ActorID: review.ActorID,
			Action:  string(review.Action),
			Note:    review.Note,
			At:      review.At,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var payload changeStatusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pr, err := h.service.ChangeStatus(r.Context(), id, Status(payload.Status), actor)
	if err != nil {
		h.respondError(w, "change status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(pr, nil, nil))
}

func (h *Handler) handleUpdateItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var payload updateItemsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pr, err := h.service.UpdateItems(r.Context(), id, itemInputs(payload.Items), actor)
	if err != nil {
		h.respondError(w, "update items", err)
		return
	}
	_, items, docs, err := h.service.GetRequest(r.Context(), pr.ID)
	if err != nil {
		h.respondError(w, "load updated request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(pr, items, docs))
}

func (h *Handler) handleComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var payload commentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.SetAccountantComment(r.Context(), id, payload.Comment, actor); err != nil {
		h.respondError(w, "set accountant comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer file.Close()
	docType := DocType(r.FormValue("type"))
	if docType == "" {
		docType = DocTypeOther
	}
	doc, err := h.service.AttachDocument(r.Context(), id, actor, DocumentInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Type:        docType,
		Body:        file,
	})
	if err != nil {
		h.respondError(w, "attach document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, documentResponse{
		ID:         doc.ID,
		FileName:   doc.FileName,
		Type:       string(doc.Type),
		ObjectKey:  doc.ObjectKey,
		UploadedBy: doc.UploadedBy,
		UploadedAt: doc.UploadedAt,
	})
}

func (h *Handler) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	docID, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
	if err != nil || docID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}
	doc, body, err := h.service.OpenDocument(r.Context(), id, docID)
	if err != nil {
		h.respondError(w, "download document", err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("stream document", slog.Any("error", err))
	}
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filters := h.listFilters(r)
	filters.Limit = exportPageLimit
	filters.Offset = 0
	page, err := h.service.ListRequests(r.Context(), filters)
	if err != nil {
		h.respondError(w, "export requests", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="purchase_requests.csv"`)
	if err := WriteRequestsCSV(w, page.Items); err != nil {
		h.logger.Error("write csv", slog.Any("error", err))
	}
}

func (h *Handler) listFilters(r *http.Request) ListFilters {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return ListFilters{
		Status: Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrPermission):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
