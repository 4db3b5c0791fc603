package server

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

type mealListBody struct {
	Meals      []mealView `json:"meals"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *string    `json:"nextCursor"`
}

func TestMealLifecycleScenario(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})

	food := createTestFood(t, stack, "Chicken")

	recorder := stack.do(t, http.MethodPost, "/meals", map[string]any{
		"mealDate": "2024-01-15", "mealTime": "morning", "foodId": food.ID, "amount": "1 can",
	})
	expectStatus(t, recorder, http.StatusCreated)
	meal := decodeBody[mealView](t, recorder)
	if meal.Food == nil || meal.Food.Name != "Chicken" || meal.Notes != "" {
		t.Fatalf("unexpected meal view: %+v", meal)
	}

	foods := decodeBody[foodListBody](t, stack.do(t, http.MethodGet, "/foods", nil))
	if len(foods.Foods) != 1 || foods.Foods[0].MealCount != 1 || foods.Foods[0].MealCommentCount != 0 {
		t.Fatalf("unexpected counts: %+v", foods.Foods)
	}

	expectStatus(t, stack.do(t, http.MethodDelete, "/foods/"+food.ID, nil), http.StatusConflict)
	expectStatus(t, stack.do(t, http.MethodDelete, "/meals/"+meal.ID, nil), http.StatusOK)
	expectStatus(t, stack.do(t, http.MethodDelete, "/foods/"+food.ID, nil), http.StatusOK)
	expectStatus(t, stack.do(t, http.MethodDelete, "/meals/"+meal.ID, nil), http.StatusNotFound)
}

func TestCreateMealFormatsTimestamps(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})
	food := createTestFood(t, stack, "Salmon")

	recorder := stack.do(t, http.MethodPost, "/meals", map[string]any{
		"mealDate": "2024-01-14", "mealTime": "evening", "foodId": strings.ToUpper(food.ID), "amount": " 100G ", "notes": "picky",
	})
	expectStatus(t, recorder, http.StatusCreated)
	meal := decodeBody[mealView](t, recorder)
	if meal.FoodID != food.ID || meal.Food == nil || meal.Food.Preference != "likes" {
		t.Fatalf("unexpected food reference: %+v", meal)
	}
	if meal.Amount != "100G" || meal.Notes != "picky" {
		t.Fatalf("unexpected amount or notes: %+v", meal)
	}
	created, err := time.Parse(timestampLayout, meal.CreatedAt)
	if err != nil {
		t.Fatalf("unexpected createdAt format %q: %v", meal.CreatedAt, err)
	}
	if !strings.HasSuffix(meal.CreatedAt, "Z") || created.IsZero() {
		t.Fatalf("expected UTC timestamp, got %q", meal.CreatedAt)
	}
}

func TestCreateMealRejectsDuplicatesAndUnknownFoods(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})
	food := createTestFood(t, stack, "Chicken")
	payload := map[string]any{"mealDate": "2024-01-15", "mealTime": "morning", "foodId": food.ID, "amount": "50g"}

	expectStatus(t, stack.do(t, http.MethodPost, "/meals", payload), http.StatusCreated)
	recorder := stack.do(t, http.MethodPost, "/meals", payload)
	expectStatus(t, recorder, http.StatusConflict)
	if body := decodeBody[errorBody](t, recorder); body.Code != "feeding.create_meal.duplicate_meal" {
		t.Fatalf("unexpected code %q", body.Code)
	}

	payload["foodId"] = "00000000-0000-7000-8000-000000000000"
	recorder = stack.do(t, http.MethodPost, "/meals", payload)
	expectStatus(t, recorder, http.StatusConflict)
	if body := decodeBody[errorBody](t, recorder); body.Code != "feeding.create_meal.unknown_food" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestCreateMealValidatesAmountAndDate(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})
	food := createTestFood(t, stack, "Chicken")

	recorder := stack.do(t, http.MethodPost, "/meals", map[string]any{
		"mealDate": "2024-01-17", "mealTime": "noon", "foodId": food.ID, "amount": "100",
	})
	expectStatus(t, recorder, http.StatusBadRequest)
	body := decodeBody[errorBody](t, recorder)
	for _, field := range []string{"mealDate", "mealTime", "amount"} {
		if body.Fields[field] == "" {
			t.Fatalf("expected %s to be reported, got %v", field, body.Fields)
		}
	}
	if _, ok := body.Fields["foodId"]; ok {
		t.Fatalf("did not expect foodId to be reported")
	}
}

func TestListMealsFiltersAndPaginates(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})
	salmon := createTestFood(t, stack, "Salmon")
	beef := createTestFood(t, stack, "Beef")
	for _, date := range []string{"2024-01-12", "2024-01-13", "2024-01-14"} {
		for _, mealTime := range []string{"morning", "evening"} {
			for _, food := range []foodView{salmon, beef} {
				recorder := stack.do(t, http.MethodPost, "/meals", map[string]any{
					"mealDate": date, "mealTime": mealTime, "foodId": food.ID, "amount": "1 pouch",
				})
				expectStatus(t, recorder, http.StatusCreated)
			}
		}
	}

	filtered := decodeBody[mealListBody](t, stack.do(t, http.MethodGet, "/meals?mealTime=evening&foodId="+beef.ID, nil))
	if len(filtered.Meals) != 3 {
		t.Fatalf("expected 3 filtered meals, got %d", len(filtered.Meals))
	}
	for _, meal := range filtered.Meals {
		if meal.MealTime != "evening" || meal.FoodID != beef.ID {
			t.Fatalf("unexpected filtered meal %+v", meal)
		}
	}

	ignored := decodeBody[mealListBody](t, stack.do(t, http.MethodGet, "/meals?mealTime=noon&foodId=nope", nil))
	if len(ignored.Meals) != 12 {
		t.Fatalf("expected invalid filters to be ignored, got %d meals", len(ignored.Meals))
	}

	seen := map[string]bool{}
	path := "/meals?limit=5"
	for pages := 0; pages < 5; pages++ {
		page := decodeBody[mealListBody](t, stack.do(t, http.MethodGet, path, nil))
		for _, meal := range page.Meals {
			if seen[meal.ID] {
				t.Fatalf("meal %s returned twice", meal.ID)
			}
			seen[meal.ID] = true
		}
		if !page.HasMore {
			break
		}
		path = "/meals?limit=5&cursor=" + *page.NextCursor
	}
	if len(seen) != 12 {
		t.Fatalf("expected to walk 12 meals, saw %d", len(seen))
	}
}

func TestUpdateMealReportsMissingMeal(t *testing.T) {
	stack := newTestStack(t, testStackOptions{})

	recorder := stack.do(t, http.MethodPatch, "/meals/00000000-0000-7000-8000-000000000000", map[string]any{"amount": "2 cans"})
	expectStatus(t, recorder, http.StatusNotFound)
	if body := decodeBody[errorBody](t, recorder); body.Error != "Meal not found" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}
