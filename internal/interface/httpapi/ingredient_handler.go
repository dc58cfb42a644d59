package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/cookbook-catalog/internal/core/ingredient"
)

// IngredientHandler は食材 API のハンドラ
type IngredientHandler struct {
	service *ingredient.Service
	logger  *slog.Logger
}

// NewIngredientHandler は IngredientHandler を作成する
func NewIngredientHandler(service *ingredient.Service, logger *slog.Logger) *IngredientHandler {
	return &IngredientHandler{service: service, logger: logger}
}

// RegisterRoutes は /api/ingredients 配下のルートを登録する
func (h *IngredientHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("/merge", h.merge)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.delete)
}

func (h *IngredientHandler) list(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toIngredientList(page))
}

func parseListFilter(c *gin.Context) (ingredient.ListFilter, error) {
	filter := ingredient.ListFilter{Query: c.Query("q")}

	var err error
	if filter.MinRecipeCount, err = parseInt(c.Query("minRecipeCount"), 0); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseInt(c.Query("limit"), ingredient.DefaultListLimit); err != nil {
		return filter, err
	}

	if raw := c.Query("hasDisambiguations"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, badRequest("invalid hasDisambiguations: %q", raw)
		}
		filter.HasAliases = mo.Some(v)
	}
	if raw := c.Query("availableNow"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, badRequest("invalid availableNow: %q", raw)
		}
		filter.AvailableNow = v
	}
	if raw := c.Query("cursor"); raw != "" {
		cursor, err := uuid.Parse(raw)
		if err != nil {
			return filter, badRequest("invalid cursor: %q", raw)
		}
		filter.Cursor = mo.Some(cursor)
	}
	return filter, nil
}

func (h *IngredientHandler) get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toIngredientDetail(detail))
}

func (h *IngredientHandler) update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req updateIngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, badRequest("invalid request body: %v", err))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.Update(ctx, id, ingredient.UpdateParams{
		Name:            req.Name,
		Aliases:         req.Disambiguations,
		AvailableMonths: req.AvailableMonths,
	}); err != nil {
		respondError(c, h.logger, err)
		return
	}

	detail, err := h.service.Get(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toIngredientDetail(detail))
}

func (h *IngredientHandler) delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IngredientHandler) merge(c *gin.Context) {
	var req mergeIngredientsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, badRequest("invalid request body: %v", err))
		return
	}

	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		respondError(c, h.logger, badRequest("invalid targetId: %q", req.TargetID))
		return
	}
	sourceIDs := make([]uuid.UUID, 0, len(req.SourceIDs))
	for _, raw := range req.SourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, h.logger, badRequest("invalid sourceId: %q", raw))
			return
		}
		sourceIDs = append(sourceIDs, id)
	}

	detail, err := h.service.Merge(c.Request.Context(), targetID, sourceIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toIngredientDetail(detail))
}
