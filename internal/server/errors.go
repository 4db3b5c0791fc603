package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actionFetchFoods     = "Failed to fetch foods"
	actionFetchSummaries = "Failed to fetch food summaries"
	actionCreateFood     = "Failed to create food"
	actionUpdateFood     = "Failed to update food"
	actionDeleteFood     = "Failed to delete food"
	actionFetchMeals     = "Failed to fetch meals"
	actionCreateMeal     = "Failed to create meal"
	actionUpdateMeal     = "Failed to update meal"
	actionDeleteMeal     = "Failed to delete meal"
)

var conflictMessages = map[error]string{
	feeding.ErrFoodReferenced: "Food is still referenced by logged meals",
	feeding.ErrDuplicateMeal:  "A meal for this food is already logged at that date and time",
	feeding.ErrUnknownFood:    "Referenced food does not exist",
}

func (h *httpHandler) respondValidationError(c *gin.Context, err error) {
	var validationErr *validation.Error
	if !errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Validation failed",
		"details": validationErr.Details,
		"fields":  validation.FieldMessages(validationErr.Details),
	})
}

// respondServiceError maps service failures onto the HTTP taxonomy. action is
// the message returned for internal failures.
func (h *httpHandler) respondServiceError(c *gin.Context, action string, err error) {
	var serviceErr *feeding.ServiceError
	if !errors.As(err, &serviceErr) {
		h.respondInternal(c, action, "", err)
		return
	}

	switch serviceErr.Kind() {
	case feeding.KindNotFound:
		message := "Not found"
		switch {
		case errors.Is(err, feeding.ErrFoodNotFound):
			message = "Food not found"
		case errors.Is(err, feeding.ErrMealNotFound):
			message = "Meal not found"
		}
		c.JSON(http.StatusNotFound, gin.H{"error": message})
	case feeding.KindConflict:
		message := "Conflict"
		for sentinel, text := range conflictMessages {
			if errors.Is(err, sentinel) {
				message = text
				break
			}
		}
		c.JSON(http.StatusConflict, gin.H{"error": message, "code": serviceErr.Code()})
	default:
		h.respondInternal(c, action, serviceErr.Code(), err)
	}
}

func (h *httpHandler) respondInternal(c *gin.Context, action, code string, err error) {
	h.logger.Error("request failed",
		zap.String("route", c.FullPath()),
		zap.String("code", code),
		zap.Error(err),
	)
	body := gin.H{"error": action}
	if code != "" {
		body["code"] = code
	}
	if h.exposeErrorDetails && err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, body)
}
