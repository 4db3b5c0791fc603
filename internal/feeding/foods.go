package feeding

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	foodsOrderCreated   = "foods.created_at_ms DESC"
	foodsOrderID        = "foods.id DESC"
	foodsBeforeMillis   = "foods.created_at_ms < ?"
	foodsBeforeKeyset   = "(foods.created_at_ms < ? OR (foods.created_at_ms = ? AND foods.id < ?))"
	foodsArchivedFilter = "foods.archived = ?"
)

// FoodListQuery selects a window of foods.
type FoodListQuery struct {
	Page pagination.Request
	// Archived restricts the listing to archived (true) or active (false) foods.
	Archived *bool
}

// FoodPage is one window of foods with their meal counts.
type FoodPage struct {
	Foods      []FoodWithCounts
	HasMore    bool
	NextCursor *pagination.Cursor
}

// ListFoods returns foods newest first with per-food meal counts.
func (s *Service) ListFoods(ctx context.Context, query FoodListQuery) (FoodPage, error) {
	if err := s.requireDatabase(opListFoods); err != nil {
		return FoodPage{}, err
	}

	statement := foodsWithCountsQuery(s.db.WithContext(ctx))
	if query.Archived != nil {
		statement = statement.Where(foodsArchivedFilter, *query.Archived)
	}

	page := query.Page
	switch {
	case page.Mode == pagination.ModeOffset:
		statement = statement.Offset(page.Offset)
	case page.Cursor != nil && page.Cursor.HasKey():
		statement = statement.Where(foodsBeforeKeyset, page.Cursor.Millis, page.Cursor.Millis, page.Cursor.Key)
	case page.Cursor != nil:
		statement = statement.Where(foodsBeforeMillis, page.Cursor.Millis)
	}

	var rows []FoodWithCounts
	if err := statement.
		Order(foodsOrderCreated).
		Order(foodsOrderID).
		Limit(page.FetchSize()).
		Scan(&rows).Error; err != nil {
		s.logError(opListFoods, reasonQuery, err)
		return FoodPage{}, newServiceError(opListFoods, reasonQuery, KindInternal, err)
	}

	window := pagination.Window(page, rows)
	result := FoodPage{Foods: window.Items, HasMore: window.HasMore}
	if window.HasMore && page.Mode == pagination.ModeCursor {
		last := window.Items[len(window.Items)-1]
		result.NextCursor = &pagination.Cursor{Millis: last.CreatedAtMillis, Key: last.ID}
	}
	return result, nil
}

// ListFoodSummaries returns id, name and preference of every active food by name.
func (s *Service) ListFoodSummaries(ctx context.Context) ([]FoodSummary, error) {
	if err := s.requireDatabase(opListSummaries); err != nil {
		return nil, err
	}

	summaries := make([]FoodSummary, 0)
	if err := s.db.WithContext(ctx).
		Model(&Food{}).
		Select("id, name, preference").
		Where("archived = ?", false).
		Order("name ASC").
		Order("id ASC").
		Scan(&summaries).Error; err != nil {
		s.logError(opListSummaries, reasonQuery, err)
		return nil, newServiceError(opListSummaries, reasonQuery, KindInternal, err)
	}
	return summaries, nil
}

// CreateFood stores a validated food and returns it with zero meal counts.
func (s *Service) CreateFood(ctx context.Context, input validation.FoodCreate) (FoodWithCounts, error) {
	if err := s.requireDatabase(opCreateFood); err != nil {
		return FoodWithCounts{}, err
	}

	foodID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateFood, reasonIDFailed, err)
		return FoodWithCounts{}, newServiceError(opCreateFood, reasonIDFailed, KindInternal, err)
	}

	now := s.nowMillis()
	food := Food{
		ID:                foodID,
		Name:              input.Name,
		Notes:             input.Notes,
		Preference:        input.Preference,
		InventoryQuantity: input.InventoryQuantity,
		Archived:          input.Archived,
		PhosphorusDmb:     input.PhosphorusDmb,
		ProteinDmb:        input.ProteinDmb,
		FatDmb:            input.FatDmb,
		FiberDmb:          input.FiberDmb,
		CreatedAtMillis:   now,
		UpdatedAtMillis:   now,
	}
	if err := s.db.WithContext(ctx).Create(&food).Error; err != nil {
		s.logError(opCreateFood, reasonInsert, err, zap.String(fieldFoodID, foodID))
		return FoodWithCounts{}, newServiceError(opCreateFood, reasonInsert, KindInternal, err)
	}

	s.notify(ctx, EntityFood, ActionCreated, food.ID)
	return FoodWithCounts{Food: food}, nil
}

// UpdateFood writes the supplied fields and always restamps updated_at_ms.
func (s *Service) UpdateFood(ctx context.Context, foodID string, patch validation.FoodPatch) error {
	if err := s.requireDatabase(opUpdateFood); err != nil {
		return err
	}

	updates := map[string]any{"updated_at_ms": s.nowMillis()}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Preference != nil {
		updates["preference"] = *patch.Preference
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.InventoryQuantity != nil {
		updates["inventory_quantity"] = *patch.InventoryQuantity
	}
	if patch.Archived != nil {
		updates["archived"] = *patch.Archived
	}
	if patch.PhosphorusDmb != nil {
		updates["phosphorus_dmb"] = *patch.PhosphorusDmb
	}
	if patch.ProteinDmb != nil {
		updates["protein_dmb"] = *patch.ProteinDmb
	}
	if patch.FatDmb != nil {
		updates["fat_dmb"] = *patch.FatDmb
	}
	if patch.FiberDmb != nil {
		updates["fiber_dmb"] = *patch.FiberDmb
	}

	result := s.db.WithContext(ctx).Model(&Food{}).Where(queryID, foodID).Updates(updates)
	if result.Error != nil {
		s.logError(opUpdateFood, reasonUpdate, result.Error, zap.String(fieldFoodID, foodID))
		return newServiceError(opUpdateFood, reasonUpdate, KindInternal, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdateFood, reasonNotFound, KindNotFound, ErrFoodNotFound)
	}

	s.notify(ctx, EntityFood, ActionUpdated, foodID)
	return nil
}

// DeleteFood removes a food that no meal references.
func (s *Service) DeleteFood(ctx context.Context, foodID string) error {
	if err := s.requireDatabase(opDeleteFood); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var references int64
		if err := tx.Model(&Meal{}).Where(queryFoodID, foodID).Count(&references).Error; err != nil {
			s.logError(opDeleteFood, reasonQuery, err, zap.String(fieldFoodID, foodID))
			return newServiceError(opDeleteFood, reasonQuery, KindInternal, err)
		}
		if references > 0 {
			return newServiceError(opDeleteFood, reasonReferenced, KindConflict, ErrFoodReferenced)
		}

		result := tx.Where(queryID, foodID).Delete(&Food{})
		if result.Error != nil {
			if classifyStoreError(result.Error) == violationForeignKey {
				return newServiceError(opDeleteFood, reasonReferenced, KindConflict, ErrFoodReferenced)
			}
			s.logError(opDeleteFood, reasonDelete, result.Error, zap.String(fieldFoodID, foodID))
			return newServiceError(opDeleteFood, reasonDelete, KindInternal, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opDeleteFood, reasonNotFound, KindNotFound, ErrFoodNotFound)
		}
		return nil
	})
	if txErr != nil {
		var serviceErr *ServiceError
		if !errors.As(txErr, &serviceErr) {
			s.logError(opDeleteFood, reasonDelete, txErr, zap.String(fieldFoodID, foodID))
			return newServiceError(opDeleteFood, reasonDelete, KindInternal, txErr)
		}
		return txErr
	}

	s.notify(ctx, EntityFood, ActionDeleted, foodID)
	return nil
}
