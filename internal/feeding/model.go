package feeding

// Food is a catalog entry that meals reference.
type Food struct {
	ID                string  `gorm:"column:id;primaryKey;size:36;not null"`
	Name              string  `gorm:"column:name;size:200;not null"`
	Notes             string  `gorm:"column:notes;type:text;not null;default:''"`
	Preference        string  `gorm:"column:preference;size:16;not null"`
	InventoryQuantity int     `gorm:"column:inventory_quantity;not null;default:0"`
	Archived          bool    `gorm:"column:archived;not null;default:false;index:idx_foods_archived_created,priority:1"`
	PhosphorusDmb     float64 `gorm:"column:phosphorus_dmb;type:numeric(5,2);not null;default:0"`
	ProteinDmb        float64 `gorm:"column:protein_dmb;type:numeric(5,2);not null;default:0"`
	FatDmb            float64 `gorm:"column:fat_dmb;type:numeric(5,2);not null;default:0"`
	FiberDmb          float64 `gorm:"column:fiber_dmb;type:numeric(5,2);not null;default:0"`
	CreatedAtMillis   int64   `gorm:"column:created_at_ms;not null;index:idx_foods_archived_created,priority:2;index:idx_foods_created"`
	UpdatedAtMillis   int64   `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Food) TableName() string {
	return "foods"
}

// Meal is a single logged feeding of one food.
type Meal struct {
	ID              string `gorm:"column:id;primaryKey;size:36;not null"`
	MealDate        string `gorm:"column:meal_date;size:10;not null;uniqueIndex:idx_meals_date_time_food,priority:1;index:idx_meals_listing,priority:1"`
	MealTime        string `gorm:"column:meal_time;size:16;not null;uniqueIndex:idx_meals_date_time_food,priority:2"`
	FoodID          string `gorm:"column:food_id;size:36;not null;uniqueIndex:idx_meals_date_time_food,priority:3;index:idx_meals_food"`
	Food            *Food  `gorm:"foreignKey:FoodID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Amount          string `gorm:"column:amount;size:50;not null"`
	Notes           string `gorm:"column:notes;type:text;not null;default:''"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_meals_listing,priority:2;index:idx_meals_created"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Meal) TableName() string {
	return "meals"
}

// FoodWithCounts is a food row augmented with its meal aggregates.
type FoodWithCounts struct {
	Food             `gorm:"embedded"`
	MealCount        int64 `gorm:"column:meal_count"`
	MealCommentCount int64 `gorm:"column:meal_comment_count"`
}

// MealWithFood is a meal row joined with a summary of its food.
// The food columns are nil when the referenced food row is missing.
type MealWithFood struct {
	ID              string  `gorm:"column:id"`
	MealDate        string  `gorm:"column:meal_date"`
	MealTime        string  `gorm:"column:meal_time"`
	FoodID          string  `gorm:"column:food_id"`
	Amount          string  `gorm:"column:amount"`
	Notes           *string `gorm:"column:notes"`
	CreatedAtMillis int64   `gorm:"column:created_at_ms"`
	UpdatedAtMillis int64   `gorm:"column:updated_at_ms"`
	FoodRefID       *string `gorm:"column:food_ref_id"`
	FoodName        *string `gorm:"column:food_name"`
	FoodPreference  *string `gorm:"column:food_preference"`
}

// FoodSummary is the compact food projection used by selection lists.
type FoodSummary struct {
	ID         string `gorm:"column:id" json:"id"`
	Name       string `gorm:"column:name" json:"name"`
	Preference string `gorm:"column:preference" json:"preference"`
}
