package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"conteo/internal/core/apperror"
	"conteo/internal/domain/count"
	"conteo/internal/infrastructure/http/v1/dto"
	"conteo/internal/infrastructure/storage/postgres"
)

// CountHandler handles count document endpoints.
type CountHandler struct {
	*BaseHandler
	service *count.Service
	audit   *postgres.AuditService // optional, nil disables the trail endpoint
}

// NewCountHandler creates a new count handler.
func NewCountHandler(base *BaseHandler, service *count.Service, audit *postgres.AuditService) *CountHandler {
	return &CountHandler{
		BaseHandler: base,
		service:     service,
		audit:       audit,
	}
}

// Get handles GET /counts/:id — the reconciled document view.
// The raw id is passed through untouched; normalization happens inside.
func (h *CountHandler) Get(c *gin.Context) {
	doc, err := h.service.Search(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCountDocument(doc))
}

// List handles GET /counts — stored documents only, header level.
func (h *CountHandler) List(c *gin.Context) {
	filter := count.DefaultListFilter()
	filter.Search = c.Query("search")
	filter.Site = c.Query("werks")
	filter.Limit = h.ParseIntQuery(c, "limit", filter.Limit)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)

	if estado := c.Query("estado"); estado != "" {
		status, ok := dto.StatusFromEstado(estado)
		if !ok {
			h.Error(c, apperror.NewValidation("unknown estado").WithDetail("estado", estado))
			return
		}
		filter.Status = &status
	}
	if from, ok := parseDateQuery(c, "from"); ok {
		filter.DateFrom = from
	}
	if to, ok := parseDateQuery(c, "to"); ok {
		filter.DateTo = to
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.CountListItemResponse, 0, len(result.Items))
	for _, doc := range result.Items {
		items = append(items, dto.FromCountListItem(doc))
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// RegisterCase handles POST /counts/:id/materials/:matnr/cases
func (h *CountHandler) RegisterCase(c *gin.Context) {
	var req dto.RegisterCaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToCaseInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	reg, err := h.service.RegisterCase(c.Request.Context(), c.Param("id"), c.Param("matnr"), in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromRegistration(reg))
}

// EditCase handles PUT /counts/:id/materials/:matnr/cases/:case
func (h *CountHandler) EditCase(c *gin.Context) {
	var req dto.EditCaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToCaseInput(c.Param("case"))
	if err != nil {
		h.Error(c, err)
		return
	}

	reg, err := h.service.EditCase(c.Request.Context(), c.Param("id"), c.Param("matnr"), in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRegistration(reg))
}

// DeleteCase handles DELETE /counts/:id/materials/:matnr/cases/:case
func (h *CountHandler) DeleteCase(c *gin.Context) {
	err := h.service.DeleteCase(c.Request.Context(), c.Param("id"), c.Param("matnr"), c.Param("case"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Save handles PUT /counts/:id — explicit full-document save.
func (h *CountHandler) Save(c *gin.Context) {
	var req dto.SaveCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToDocument(c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	saved, err := h.service.Save(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCountDocument(saved))
}

// Process handles POST /counts/:id/process
func (h *CountHandler) Process(c *gin.Context) {
	doc, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCountDocument(doc))
}

// Post handles POST /counts/:id/post — the accounting confirmation.
func (h *CountHandler) Post(c *gin.Context) {
	doc, err := h.service.Post(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCountDocument(doc))
}

// AuditTrail handles GET /counts/:id/audit
func (h *CountHandler) AuditTrail(c *gin.Context) {
	if h.audit == nil {
		h.OK(c, gin.H{"items": []any{}})
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	entries, err := h.audit.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"action":    e.Action,
			"estado":    e.Status,
			"username":  e.Username,
			"snapshot":  e.Snapshot,
			"createdAt": e.CreatedAt,
		})
	}

	h.OK(c, gin.H{"items": items})
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, bool) {
	val := c.Query(key)
	if val == "" {
		return nil, false
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return nil, false
	}
	return &t, true
}
