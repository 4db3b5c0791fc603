package validation

import "strings"

// Meal time values accepted for a meal.
const (
	MealTimeMorning = "morning"
	MealTimeEvening = "evening"
)

// MealCreate is a validated meal creation payload.
type MealCreate struct {
	MealDate string
	MealTime string
	FoodID   string
	Amount   string
	Notes    string
}

// MealPatch is a validated partial meal update; nil fields are left untouched.
type MealPatch struct {
	MealDate *string
	MealTime *string
	FoodID   *string
	Amount   *string
	Notes    *string
}

func mealRules() []fieldRule {
	return []fieldRule{
		{
			name:     "mealDate",
			kind:     kindString,
			tag:      tagISODate + "," + tagMealDateRange,
			required: true,
			messages: map[string]string{
				"required":       "Date must be in YYYY-MM-DD format",
				"type":           "Date must be in YYYY-MM-DD format",
				tagISODate:       "Date must be in YYYY-MM-DD format",
				tagMealDateRange: "Date must be between " + MinMealDate.Format(DateLayout) + " and tomorrow",
			},
		},
		{
			name:     "mealTime",
			kind:     kindString,
			tag:      "oneof=" + MealTimeMorning + " " + MealTimeEvening,
			required: true,
			messages: map[string]string{
				"required": "Meal time must be 'morning' or 'evening'",
				"oneof":    "Meal time must be 'morning' or 'evening'",
				"type":     "Meal time must be 'morning' or 'evening'",
			},
		},
		{
			name:      "foodId",
			kind:      kindString,
			tag:       "uuid",
			required:  true,
			normalize: strings.ToLower,
			messages: map[string]string{
				"required": "Invalid food ID format",
				"uuid":     "Invalid food ID format",
				"type":     "Invalid food ID format",
			},
		},
		{
			name:     "amount",
			kind:     kindString,
			tag:      "min=1,max=50," + tagAmount,
			required: true,
			messages: map[string]string{
				"required": "Amount is required",
				"min":      "Amount is required",
				"max":      "Amount description too long",
				tagAmount:  "Amount must be a number with a unit (e.g., '100g', '2 cans', '1.5 cups')",
				"type":     "Amount must be a string",
			},
		},
		{
			name: "notes",
			kind: kindString,
			tag:  "max=500",
			messages: map[string]string{
				"max":  "Notes must be less than 500 characters",
				"type": "Notes must be a string",
			},
		},
	}
}

// MealCreate validates a meal creation body.
func (v *Validator) MealCreate(body []byte) (MealCreate, error) {
	values, err := v.check(body, schema{rules: mealRules()})
	if err != nil {
		return MealCreate{}, err
	}

	input := MealCreate{
		MealDate: *stringField(values, "mealDate"),
		MealTime: *stringField(values, "mealTime"),
		FoodID:   *stringField(values, "foodId"),
		Amount:   strings.TrimSpace(*stringField(values, "amount")),
	}
	if notes := stringField(values, "notes"); notes != nil {
		input.Notes = *notes
	}
	return input, nil
}

// MealUpdate validates a partial meal update body.
func (v *Validator) MealUpdate(body []byte) (MealPatch, error) {
	values, err := v.check(body, schema{rules: mealRules(), partial: true})
	if err != nil {
		return MealPatch{}, err
	}

	patch := MealPatch{
		MealDate: stringField(values, "mealDate"),
		MealTime: stringField(values, "mealTime"),
		FoodID:   stringField(values, "foodId"),
		Amount:   stringField(values, "amount"),
		Notes:    stringField(values, "notes"),
	}
	if patch.Amount != nil {
		trimmed := strings.TrimSpace(*patch.Amount)
		patch.Amount = &trimmed
	}
	return patch, nil
}
