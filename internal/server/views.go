package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type foodView struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Preference        string  `json:"preference"`
	Notes             string  `json:"notes"`
	InventoryQuantity int     `json:"inventoryQuantity"`
	Archived          bool    `json:"archived"`
	AddedAt           int64   `json:"addedAt"`
	PhosphorusDmb     float64 `json:"phosphorusDmb"`
	ProteinDmb        float64 `json:"proteinDmb"`
	FatDmb            float64 `json:"fatDmb"`
	FiberDmb          float64 `json:"fiberDmb"`
	MealCount         int64   `json:"mealCount"`
	MealCommentCount  int64   `json:"mealCommentCount"`
}

type foodSummaryView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Preference string `json:"preference"`
}

type mealView struct {
	ID        string           `json:"id"`
	MealDate  string           `json:"mealDate"`
	MealTime  string           `json:"mealTime"`
	FoodID    string           `json:"foodId"`
	Food      *foodSummaryView `json:"food"`
	Amount    string           `json:"amount"`
	Notes     string           `json:"notes"`
	CreatedAt string           `json:"createdAt"`
	UpdatedAt string           `json:"updatedAt"`
}

type foodListResponse struct {
	Foods      []foodView `json:"foods"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

type mealListResponse struct {
	Meals      []mealView `json:"meals"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

type foodSummaryResponse struct {
	Foods []foodSummaryView `json:"foods"`
}

func newFoodView(food feeding.FoodWithCounts) foodView {
	return foodView{
		ID:                food.ID,
		Name:              food.Name,
		Preference:        food.Preference,
		Notes:             food.Notes,
		InventoryQuantity: food.InventoryQuantity,
		Archived:          food.Archived,
		AddedAt:           food.CreatedAtMillis,
		PhosphorusDmb:     food.PhosphorusDmb,
		ProteinDmb:        food.ProteinDmb,
		FatDmb:            food.FatDmb,
		FiberDmb:          food.FiberDmb,
		MealCount:         food.MealCount,
		MealCommentCount:  food.MealCommentCount,
	}
}

func newMealView(meal feeding.MealWithFood) mealView {
	view := mealView{
		ID:        meal.ID,
		MealDate:  meal.MealDate,
		MealTime:  meal.MealTime,
		FoodID:    meal.FoodID,
		Amount:    meal.Amount,
		CreatedAt: formatMillis(meal.CreatedAtMillis),
		UpdatedAt: formatMillis(meal.UpdatedAtMillis),
	}
	if meal.Notes != nil {
		view.Notes = *meal.Notes
	}
	if meal.FoodRefID != nil {
		view.Food = &foodSummaryView{ID: *meal.FoodRefID}
		if meal.FoodName != nil {
			view.Food.Name = *meal.FoodName
		}
		if meal.FoodPreference != nil {
			view.Food.Preference = *meal.FoodPreference
		}
	}
	return view
}

func newFoodListResponse(page feeding.FoodPage) foodListResponse {
	response := foodListResponse{
		Foods:      make([]foodView, 0, len(page.Foods)),
		HasMore:    page.HasMore,
		NextCursor: encodeCursor(page.NextCursor),
	}
	for _, food := range page.Foods {
		response.Foods = append(response.Foods, newFoodView(food))
	}
	return response
}

func newMealListResponse(page feeding.MealPage) mealListResponse {
	response := mealListResponse{
		Meals:      make([]mealView, 0, len(page.Meals)),
		HasMore:    page.HasMore,
		NextCursor: encodeCursor(page.NextCursor),
	}
	for _, meal := range page.Meals {
		response.Meals = append(response.Meals, newMealView(meal))
	}
	return response
}

func newFoodSummaryResponse(summaries []feeding.FoodSummary) foodSummaryResponse {
	response := foodSummaryResponse{Foods: make([]foodSummaryView, 0, len(summaries))}
	for _, summary := range summaries {
		response.Foods = append(response.Foods, foodSummaryView{
			ID:         summary.ID,
			Name:       summary.Name,
			Preference: summary.Preference,
		})
	}
	return response
}

func encodeCursor(cursor *pagination.Cursor) *string {
	if cursor == nil {
		return nil
	}
	encoded := cursor.String()
	return &encoded
}

func formatMillis(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(timestampLayout)
}
