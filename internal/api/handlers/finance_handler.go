package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/market-console/finance-portal/internal/application"
	"github.com/market-console/finance-portal/internal/domain"
	"github.com/market-console/finance-portal/pkg/api"
	apperrors "github.com/market-console/finance-portal/pkg/errors"
	"github.com/market-console/finance-portal/pkg/logging"
	"github.com/market-console/finance-portal/pkg/middleware"
)

// FinanceHandler serves the finance page of the seller console
type FinanceHandler struct {
	store  *application.SessionStore
	loc    *time.Location
	logger *logging.Logger
}

// NewFinanceHandler creates a new finance handler. Calendar days in
// requests are read in loc.
func NewFinanceHandler(store *application.SessionStore, loc *time.Location, logger *logging.Logger) *FinanceHandler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FinanceHandler{
		store:  store,
		loc:    loc,
		logger: logger.WithComponent("finance-handler"),
	}
}

// RegisterRoutes registers the finance routes. The group must run
// middleware.SessionAuth.
func (h *FinanceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/overview", h.GetOverview)
	r.POST("/refresh", h.Refresh)
	r.GET("/transactions", h.GetTransactions)

	filters := r.Group("/filters")
	filters.PUT("/date-range", h.SetDateRange)
	filters.PUT("/quick-range", h.SetQuickRange)
	filters.PUT("/types", h.SetTypes)
	filters.PUT("/search", h.SetSearch)

	r.GET("/export", h.DownloadExport)
	r.POST("/export", h.Export)
	r.DELETE("/session", h.DeleteSession)
}

// DateRangeRequest sets a manual range. Either bound may be omitted.
type DateRangeRequest struct {
	Start string `json:"start" binding:"omitempty,day"`
	End   string `json:"end" binding:"omitempty,day"`
}

// QuickRangeRequest selects a named range
type QuickRangeRequest struct {
	Range string `json:"range" binding:"required,quick_range"`
}

// TypesRequest selects categories; an empty list matches everything
type TypesRequest struct {
	Types []string `json:"types" binding:"max=10,dive,finance_type"`
}

// SearchRequest sets the free-text term
type SearchRequest struct {
	Text string `json:"text" binding:"max=200,safe_string"`
}

// ExportResponse summarizes a finished export
type ExportResponse struct {
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
}

func (h *FinanceHandler) respond(c *gin.Context, err error) {
	middleware.NewErrorResponder(c, h.logger).RespondWithError(err)
}

// page returns the caller's finance page, creating it on first use
func (h *FinanceHandler) page(c *gin.Context) (*application.FinancePage, bool) {
	sc := middleware.GetSession(c)
	if sc == nil {
		middleware.NewErrorResponder(c, h.logger).RespondUnauthorized("bearer token is required")
		return nil, false
	}
	return h.store.GetOrCreate(sc.SessionID), true
}

// GetOverview handles GET /overview. The first call on a session loads it.
func (h *FinanceHandler) GetOverview(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	if err := page.EnsureLoaded(c.Request.Context()); err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page.Overview())
}

// Refresh handles POST /refresh
func (h *FinanceHandler) Refresh(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	if err := page.Refresh(c.Request.Context()); err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page.Overview())
}

// GetTransactions handles GET /transactions
func (h *FinanceHandler) GetTransactions(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	if err := page.EnsureLoaded(c.Request.Context()); err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, api.Paginate(page.Rows(), api.ParsePagination(c)))
}

// SetDateRange handles PUT /filters/date-range
func (h *FinanceHandler) SetDateRange(c *gin.Context) {
	var req DateRangeRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger).RespondWithAppError(appErr)
		return
	}
	start, err := h.parseDay(req.Start)
	if err != nil {
		h.respond(c, apperrors.ErrValidation("invalid start").WithDetail("start", err.Error()))
		return
	}
	end, err := h.parseDay(req.End)
	if err != nil {
		h.respond(c, apperrors.ErrValidation("invalid end").WithDetail("end", err.Error()))
		return
	}
	if start != nil && end != nil && start.After(*end) {
		h.respond(c, apperrors.ErrValidation("start must not be after end").
			WithDetail("start", "must be on or before end"))
		return
	}

	h.mutate(c, func(page *application.FinancePage) error {
		return page.SetDateRange(start, end)
	})
}

// SetQuickRange handles PUT /filters/quick-range
func (h *FinanceHandler) SetQuickRange(c *gin.Context) {
	var req QuickRangeRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger).RespondWithAppError(appErr)
		return
	}
	h.mutate(c, func(page *application.FinancePage) error {
		return page.SetQuickRange(domain.QuickRange(req.Range))
	})
}

// SetTypes handles PUT /filters/types
func (h *FinanceHandler) SetTypes(c *gin.Context) {
	var req TypesRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger).RespondWithAppError(appErr)
		return
	}
	types := make([]domain.Category, 0, len(req.Types))
	for _, t := range req.Types {
		if cat, ok := domain.ParseCategory(t); ok {
			types = append(types, cat)
		}
	}
	h.mutate(c, func(page *application.FinancePage) error {
		return page.SetTypes(types)
	})
}

// SetSearch handles PUT /filters/search
func (h *FinanceHandler) SetSearch(c *gin.Context) {
	var req SearchRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		middleware.NewErrorResponder(c, h.logger).RespondWithAppError(appErr)
		return
	}
	text := middleware.SanitizeString(req.Text)
	h.mutate(c, func(page *application.FinancePage) error {
		return page.SetSearchText(text)
	})
}

// mutate applies a filter change and returns the updated overview. Filters
// work on cached rows only.
func (h *FinanceHandler) mutate(c *gin.Context, fn func(page *application.FinancePage) error) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	if err := fn(page); err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page.Overview())
}

// DownloadExport handles GET /export
func (h *FinanceHandler) DownloadExport(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	file, err := page.ExportTransactionsToCSV(c.Request.Context())
	if err != nil {
		h.respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Export handles POST /export
func (h *FinanceHandler) Export(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	file, err := page.ExportTransactionsToCSV(c.Request.Context())
	if err != nil {
		h.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ExportResponse{Filename: file.Filename, Rows: file.Rows})
}

// DeleteSession handles DELETE /session
func (h *FinanceHandler) DeleteSession(c *gin.Context) {
	sc := middleware.GetSession(c)
	if sc == nil {
		middleware.NewErrorResponder(c, h.logger).RespondUnauthorized("bearer token is required")
		return
	}
	if !h.store.Delete(sc.SessionID) {
		h.respond(c, apperrors.ErrNotFound("finance session"))
		return
	}
	h.logger.WithContext(c.Request.Context()).Info("Finance session closed by client")
	c.Status(http.StatusNoContent)
}

func (h *FinanceHandler) parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(middleware.DayLayout, s, h.loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
