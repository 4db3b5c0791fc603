package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListFoods(c *gin.Context) {
	query := feeding.FoodListQuery{Page: pagination.ParseRequest(c.Request.URL.Query())}
	switch strings.ToLower(strings.TrimSpace(c.Query("archived"))) {
	case "true":
		archived := true
		query.Archived = &archived
	case "false":
		archived := false
		query.Archived = &archived
	}

	page, err := h.feeding.ListFoods(c.Request.Context(), query)
	if err != nil {
		h.respondServiceError(c, actionFetchFoods, err)
		return
	}
	c.Header("Cache-Control", readCacheControl)
	c.JSON(http.StatusOK, newFoodListResponse(page))
}

func (h *httpHandler) handleListFoodSummaries(c *gin.Context) {
	summaries, err := h.summaries.Get(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, actionFetchSummaries, err)
		return
	}
	c.Header("Cache-Control", readCacheControl)
	c.JSON(http.StatusOK, newFoodSummaryResponse(summaries))
}

func (h *httpHandler) handleCreateFood(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondInternal(c, actionCreateFood, "", err)
		return
	}
	input, err := h.validator.FoodCreate(body)
	if err != nil {
		h.respondValidationError(c, err)
		return
	}

	food, err := h.feeding.CreateFood(c.Request.Context(), input)
	if err != nil {
		h.respondServiceError(c, actionCreateFood, err)
		return
	}
	c.JSON(http.StatusCreated, newFoodView(food))
}

func (h *httpHandler) handleUpdateFood(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondInternal(c, actionUpdateFood, "", err)
		return
	}
	patch, err := h.validator.FoodUpdate(body)
	if err != nil {
		h.respondValidationError(c, err)
		return
	}

	if err := h.feeding.UpdateFood(c.Request.Context(), c.Param("id"), patch); err != nil {
		h.respondServiceError(c, actionUpdateFood, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleDeleteFood(c *gin.Context) {
	if err := h.feeding.DeleteFood(c.Request.Context(), c.Param("id")); err != nil {
		h.respondServiceError(c, actionDeleteFood, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
