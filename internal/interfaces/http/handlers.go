package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/application/service"
	"github.com/garyjia/onecost/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	auth        service.AuthService
	solicitacao service.SolicitacaoService
	metrics     *Metrics
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(auth service.AuthService, solicitacao service.SolicitacaoService, metrics *Metrics, logger Logger) *Handlers {
	return &Handlers{
		auth:        auth,
		solicitacao: solicitacao,
		metrics:     metrics,
		logger:      logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ListQuery holds the query parameters of GET /solicitacoes/
type ListQuery struct {
	Skip         int    `form:"skip"`
	Limit        int    `form:"limit"`
	StatusRobo   string `form:"status_robo"`
	StatusRoboNe string `form:"status_robo_ne"`
}

type countResponse struct {
	Count int `json:"count"`
}

func errorBody(msg string) gin.H {
	return gin.H{"detail": msg}
}

// writeError maps service errors onto status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, entity.ErrInvalidUpdate):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, port.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, port.ErrConflict):
		c.JSON(http.StatusConflict, errorBody(err.Error()))
	default:
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Login handles POST /login with form fields username and password
func (h *Handlers) Login(c *gin.Context) {
	token, err := h.auth.Login(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, errorBody(err.Error()))
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// CurrentUser handles GET /users/me
func (h *Handlers) CurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// CreateSolicitacao handles POST /solicitacoes/
func (h *Handlers) CreateSolicitacao(c *gin.Context) {
	var in entity.SolicitacaoCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rec, err := h.solicitacao.Create(c.Request.Context(), in, currentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListSolicitacoes handles GET /solicitacoes/
func (h *Handlers) ListSolicitacoes(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid query parameters"))
		return
	}

	records, err := h.solicitacao.List(c.Request.Context(), entity.SolicitacaoFilter{
		StatusIn:    splitList(q.StatusRobo),
		StatusNotIn: splitList(q.StatusRoboNe),
		Skip:        q.Skip,
		Limit:       q.Limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetSolicitacao handles GET /solicitacoes/:id
func (h *Handlers) GetSolicitacao(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.solicitacao.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateSolicitacao handles PUT /solicitacoes/:id. Only keys present in the
// body are applied; an explicit null clears nullable fields.
func (h *Handlers) UpdateSolicitacao(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var upd entity.SolicitacaoUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rec, err := h.solicitacao.Update(c.Request.Context(), id, upd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if upd.StatusRobo.IsSet() {
		h.metrics.RecordUpdated(rec.StatusRobo)
	}
	c.JSON(http.StatusOK, rec)
}

// ResetErrors handles POST /solicitacoes/reset-erros
func (h *Handlers) ResetErrors(c *gin.Context) {
	n, err := h.solicitacao.ResetErrors(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("Error statuses reset by operator", "count", n, "user_id", currentUser(c).ID)
	c.JSON(http.StatusOK, countResponse{Count: n})
}

// ExportSolicitacoes handles GET /solicitacoes/export
func (h *Handlers) ExportSolicitacoes(c *gin.Context) {
	var all []*entity.Solicitacao
	for skip := 0; ; skip += exportPageSize {
		page, err := h.solicitacao.List(c.Request.Context(), entity.SolicitacaoFilter{Skip: skip, Limit: exportPageSize})
		if err != nil {
			h.writeError(c, err)
			return
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	f, err := buildExport(all)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.writeError(c, err)
		return
	}
	filename := "solicitacoes_" + time.Now().Format("20060102_150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody("invalid id"))
		return 0, false
	}
	return id, true
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
