package feeding

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	mealTimeRank = "(CASE meals.meal_time WHEN 'morning' THEN 0 ELSE 1 END)"

	mealsSelect = "meals.id, meals.meal_date, meals.meal_time, meals.food_id, meals.amount, meals.notes, " +
		"meals.created_at_ms, meals.updated_at_ms, " +
		"foods.id AS food_ref_id, foods.name AS food_name, foods.preference AS food_preference"
	mealsJoinFoods = "LEFT JOIN foods ON foods.id = meals.food_id"

	mealsOrderDate    = "meals.meal_date DESC"
	mealsOrderTime    = mealTimeRank + " ASC"
	mealsOrderCreated = "meals.created_at_ms DESC"
	mealsOrderID      = "meals.id DESC"

	mealsBeforeMillis = "meals.created_at_ms < ?"
	// Continues after the row keyed (meal_date, rank, created_at_ms, id)
	// under meal_date DESC, rank ASC, created_at_ms DESC, id DESC.
	mealsAfterKeyset = "(meals.meal_date < ?" +
		" OR (meals.meal_date = ? AND " + mealTimeRank + " > ?)" +
		" OR (meals.meal_date = ? AND " + mealTimeRank + " = ? AND meals.created_at_ms < ?)" +
		" OR (meals.meal_date = ? AND " + mealTimeRank + " = ? AND meals.created_at_ms = ? AND meals.id < ?))"

	mealCursorSeparator = "|"
)

// MealListQuery selects a window of meals.
type MealListQuery struct {
	Page     pagination.Request
	MealTime *string
	FoodID   *string
}

// MealPage is one window of meals.
type MealPage struct {
	Meals      []MealWithFood
	HasMore    bool
	NextCursor *pagination.Cursor
}

type mealCursorKey struct {
	mealDate string
	rank     int
	id       string
}

func mealRank(mealTime string) int {
	if mealTime == validation.MealTimeMorning {
		return 0
	}
	return 1
}

func encodeMealCursorKey(meal MealWithFood) string {
	return strings.Join([]string{meal.MealDate, meal.MealTime, meal.ID}, mealCursorSeparator)
}

func decodeMealCursorKey(key string) (mealCursorKey, bool) {
	parts := strings.SplitN(key, mealCursorSeparator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return mealCursorKey{}, false
	}
	if parts[1] != validation.MealTimeMorning && parts[1] != validation.MealTimeEvening {
		return mealCursorKey{}, false
	}
	return mealCursorKey{mealDate: parts[0], rank: mealRank(parts[1]), id: parts[2]}, true
}

// ListMeals returns meals by date (newest first), morning before evening.
// Server issued cursors carry the full ordering key. A bare millisecond
// cursor only filters on creation time.
func (s *Service) ListMeals(ctx context.Context, query MealListQuery) (MealPage, error) {
	if err := s.requireDatabase(opListMeals); err != nil {
		return MealPage{}, err
	}

	statement := s.db.WithContext(ctx).
		Table(Meal{}.TableName()).
		Select(mealsSelect).
		Joins(mealsJoinFoods)
	if query.MealTime != nil {
		statement = statement.Where("meals.meal_time = ?", *query.MealTime)
	}
	if query.FoodID != nil {
		statement = statement.Where("meals.food_id = ?", *query.FoodID)
	}

	page := query.Page
	if page.Mode == pagination.ModeOffset {
		statement = statement.Offset(page.Offset)
	} else if page.Cursor != nil {
		if !page.Cursor.HasKey() {
			statement = statement.Where(mealsBeforeMillis, page.Cursor.Millis)
		} else if key, ok := decodeMealCursorKey(page.Cursor.Key); ok {
			millis := page.Cursor.Millis
			statement = statement.Where(mealsAfterKeyset,
				key.mealDate,
				key.mealDate, key.rank,
				key.mealDate, key.rank, millis,
				key.mealDate, key.rank, millis, key.id)
		}
	}

	var rows []MealWithFood
	if err := statement.
		Order(mealsOrderDate).
		Order(mealsOrderTime).
		Order(mealsOrderCreated).
		Order(mealsOrderID).
		Limit(page.FetchSize()).
		Scan(&rows).Error; err != nil {
		s.logError(opListMeals, reasonQuery, err)
		return MealPage{}, newServiceError(opListMeals, reasonQuery, KindInternal, err)
	}

	window := pagination.Window(page, rows)
	result := MealPage{Meals: window.Items, HasMore: window.HasMore}
	if window.HasMore && page.Mode == pagination.ModeCursor {
		last := window.Items[len(window.Items)-1]
		result.NextCursor = &pagination.Cursor{Millis: last.CreatedAtMillis, Key: encodeMealCursorKey(last)}
	}
	return result, nil
}

// CreateMeal stores a validated meal for an existing food.
func (s *Service) CreateMeal(ctx context.Context, input validation.MealCreate) (MealWithFood, error) {
	if err := s.requireDatabase(opCreateMeal); err != nil {
		return MealWithFood{}, err
	}

	mealID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateMeal, reasonIDFailed, err)
		return MealWithFood{}, newServiceError(opCreateMeal, reasonIDFailed, KindInternal, err)
	}

	now := s.nowMillis()
	meal := Meal{
		ID:              mealID,
		MealDate:        input.MealDate,
		MealTime:        input.MealTime,
		FoodID:          input.FoodID,
		Amount:          input.Amount,
		Notes:           input.Notes,
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}

	var food Food
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id, name, preference").Where(queryID, input.FoodID).Take(&food).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opCreateMeal, reasonUnknown, KindConflict, ErrUnknownFood)
			}
			s.logError(opCreateMeal, reasonQuery, err, zap.String(fieldFoodID, input.FoodID))
			return newServiceError(opCreateMeal, reasonQuery, KindInternal, err)
		}
		if err := tx.Omit("Food").Create(&meal).Error; err != nil {
			return s.mealWriteError(opCreateMeal, reasonInsert, err, mealID)
		}
		return nil
	})
	if txErr != nil {
		return MealWithFood{}, txErr
	}

	s.notify(ctx, EntityMeal, ActionCreated, meal.ID)

	notes := meal.Notes
	return MealWithFood{
		ID:              meal.ID,
		MealDate:        meal.MealDate,
		MealTime:        meal.MealTime,
		FoodID:          meal.FoodID,
		Amount:          meal.Amount,
		Notes:           &notes,
		CreatedAtMillis: meal.CreatedAtMillis,
		UpdatedAtMillis: meal.UpdatedAtMillis,
		FoodRefID:       &food.ID,
		FoodName:        &food.Name,
		FoodPreference:  &food.Preference,
	}, nil
}

// UpdateMeal writes the supplied fields and always restamps updated_at_ms.
func (s *Service) UpdateMeal(ctx context.Context, mealID string, patch validation.MealPatch) error {
	if err := s.requireDatabase(opUpdateMeal); err != nil {
		return err
	}

	updates := map[string]any{"updated_at_ms": s.nowMillis()}
	if patch.MealDate != nil {
		updates["meal_date"] = *patch.MealDate
	}
	if patch.MealTime != nil {
		updates["meal_time"] = *patch.MealTime
	}
	if patch.FoodID != nil {
		updates["food_id"] = *patch.FoodID
	}
	if patch.Amount != nil {
		updates["amount"] = *patch.Amount
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if patch.FoodID != nil {
			var references int64
			if err := tx.Model(&Food{}).Where(queryID, *patch.FoodID).Count(&references).Error; err != nil {
				s.logError(opUpdateMeal, reasonQuery, err, zap.String(fieldMealID, mealID))
				return newServiceError(opUpdateMeal, reasonQuery, KindInternal, err)
			}
			if references == 0 {
				return newServiceError(opUpdateMeal, reasonUnknown, KindConflict, ErrUnknownFood)
			}
		}

		result := tx.Model(&Meal{}).Where(queryID, mealID).Updates(updates)
		if result.Error != nil {
			return s.mealWriteError(opUpdateMeal, reasonUpdate, result.Error, mealID)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateMeal, reasonNotFound, KindNotFound, ErrMealNotFound)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.notify(ctx, EntityMeal, ActionUpdated, mealID)
	return nil
}

// DeleteMeal removes a meal.
func (s *Service) DeleteMeal(ctx context.Context, mealID string) error {
	if err := s.requireDatabase(opDeleteMeal); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Where(queryID, mealID).Delete(&Meal{})
	if result.Error != nil {
		s.logError(opDeleteMeal, reasonDelete, result.Error, zap.String(fieldMealID, mealID))
		return newServiceError(opDeleteMeal, reasonDelete, KindInternal, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteMeal, reasonNotFound, KindNotFound, ErrMealNotFound)
	}

	s.notify(ctx, EntityMeal, ActionDeleted, mealID)
	return nil
}

func (s *Service) mealWriteError(operation, reason string, err error, mealID string) error {
	switch classifyStoreError(err) {
	case violationUnique:
		return newServiceError(operation, reasonDuplicate, KindConflict, ErrDuplicateMeal)
	case violationForeignKey:
		return newServiceError(operation, reasonUnknown, KindConflict, ErrUnknownFood)
	default:
		s.logError(operation, reason, err, zap.String(fieldMealID, mealID))
		return newServiceError(operation, reason, KindInternal, err)
	}
}
