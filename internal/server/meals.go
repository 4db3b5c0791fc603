package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseMealListQuery ignores filter values it cannot use, like a bad cursor.
func parseMealListQuery(c *gin.Context) feeding.MealListQuery {
	query := feeding.MealListQuery{Page: pagination.ParseRequest(c.Request.URL.Query())}

	switch mealTime := strings.ToLower(strings.TrimSpace(c.Query("mealTime"))); mealTime {
	case validation.MealTimeMorning, validation.MealTimeEvening:
		query.MealTime = &mealTime
	}

	if parsed, err := uuid.Parse(strings.TrimSpace(c.Query("foodId"))); err == nil {
		foodID := parsed.String()
		query.FoodID = &foodID
	}
	return query
}

func (h *httpHandler) handleListMeals(c *gin.Context) {
	page, err := h.feeding.ListMeals(c.Request.Context(), parseMealListQuery(c))
	if err != nil {
		h.respondServiceError(c, actionFetchMeals, err)
		return
	}
	c.Header("Cache-Control", readCacheControl)
	c.JSON(http.StatusOK, newMealListResponse(page))
}

func (h *httpHandler) handleCreateMeal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondInternal(c, actionCreateMeal, "", err)
		return
	}
	input, err := h.validator.MealCreate(body)
	if err != nil {
		h.respondValidationError(c, err)
		return
	}

	meal, err := h.feeding.CreateMeal(c.Request.Context(), input)
	if err != nil {
		h.respondServiceError(c, actionCreateMeal, err)
		return
	}
	c.JSON(http.StatusCreated, newMealView(meal))
}

func (h *httpHandler) handleUpdateMeal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondInternal(c, actionUpdateMeal, "", err)
		return
	}
	patch, err := h.validator.MealUpdate(body)
	if err != nil {
		h.respondValidationError(c, err)
		return
	}

	if err := h.feeding.UpdateMeal(c.Request.Context(), c.Param("id"), patch); err != nil {
		h.respondServiceError(c, actionUpdateMeal, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleDeleteMeal(c *gin.Context) {
	if err := h.feeding.DeleteMeal(c.Request.Context(), c.Param("id")); err != nil {
		h.respondServiceError(c, actionDeleteMeal, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
