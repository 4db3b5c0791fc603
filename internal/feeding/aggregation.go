package feeding

import "gorm.io/gorm"

const (
	mealCountsAlias = "meal_counts"

	// Both counts come out of one grouped pass over meals so they always
	// describe the same snapshot.
	mealCountsSelect = "meals.food_id AS food_id, " +
		"COUNT(*) AS total_count, " +
		"COUNT(CASE WHEN meals.notes IS NOT NULL AND meals.notes <> '' THEN 1 END) AS comment_count"

	foodsWithCountsSelect = "foods.*, " +
		"COALESCE(" + mealCountsAlias + ".total_count, 0) AS meal_count, " +
		"COALESCE(" + mealCountsAlias + ".comment_count, 0) AS meal_comment_count"

	foodsWithCountsJoin = "LEFT JOIN (?) AS " + mealCountsAlias + " ON " + mealCountsAlias + ".food_id = foods.id"
)

// mealCountsQuery groups every meal by food. Meals count toward their food
// regardless of the food's archived flag.
func mealCountsQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&Meal{}).
		Select(mealCountsSelect).
		Group("meals.food_id")
}

// foodsWithCountsQuery left-joins the grouped meal counts onto foods so that
// foods without meals report zero for both counts.
func foodsWithCountsQuery(db *gorm.DB) *gorm.DB {
	return db.Table(Food{}.TableName()).
		Select(foodsWithCountsSelect).
		Joins(foodsWithCountsJoin, mealCountsQuery(db))
}
