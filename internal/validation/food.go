package validation

// Preference values accepted for a food.
const (
	PreferenceLikes    = "likes"
	PreferenceDislikes = "dislikes"
	PreferenceUnknown  = "unknown"
)

// FoodCreate is a validated food creation payload with defaults applied.
type FoodCreate struct {
	Name              string
	Preference        string
	Notes             string
	InventoryQuantity int
	Archived          bool
	PhosphorusDmb     float64
	ProteinDmb        float64
	FatDmb            float64
	FiberDmb          float64
}

// FoodPatch is a validated partial food update; nil fields are left untouched.
type FoodPatch struct {
	Name              *string
	Preference        *string
	Notes             *string
	InventoryQuantity *int
	Archived          *bool
	PhosphorusDmb     *float64
	ProteinDmb        *float64
	FatDmb            *float64
	FiberDmb          *float64
}

func foodRules(partial bool) []fieldRule {
	nameRequired := "Food name is required"
	if partial {
		nameRequired = "Food name cannot be empty"
	}
	return []fieldRule{
		{
			name:     "name",
			kind:     kindString,
			tag:      "min=1,max=200",
			required: true,
			messages: map[string]string{
				"required": nameRequired,
				"min":      nameRequired,
				"max":      "Food name must be less than 200 characters",
				"type":     "Food name must be a string",
			},
		},
		{
			name:     "preference",
			kind:     kindString,
			tag:      "oneof=" + PreferenceLikes + " " + PreferenceDislikes + " " + PreferenceUnknown,
			required: true,
			messages: map[string]string{
				"required": "Preference must be 'likes', 'dislikes', or 'unknown'",
				"oneof":    "Preference must be 'likes', 'dislikes', or 'unknown'",
				"type":     "Preference must be 'likes', 'dislikes', or 'unknown'",
			},
		},
		{
			name: "notes",
			kind: kindString,
			tag:  "max=2000",
			messages: map[string]string{
				"max":  "Notes must be less than 2000 characters",
				"type": "Notes must be a string",
			},
		},
		{
			name: "inventoryQuantity",
			kind: kindInteger,
			tag:  "min=0,max=999",
			messages: map[string]string{
				"min":     "Inventory cannot be negative",
				"max":     "Inventory cannot exceed 999",
				"integer": "Inventory must be a whole number",
				"type":    "Inventory must be a number",
			},
		},
		{
			name: "archived",
			kind: kindBoolean,
			messages: map[string]string{
				"type": "Archived must be a boolean",
			},
		},
		nutritionRule("phosphorusDmb", "Phosphorus"),
		nutritionRule("proteinDmb", "Protein"),
		nutritionRule("fatDmb", "Fat"),
		nutritionRule("fiberDmb", "Fiber"),
	}
}

func nutritionRule(name, label string) fieldRule {
	return fieldRule{
		name: name,
		kind: kindDecimal,
		tag:  "min=0,max=100," + tagDecimalPlaces,
		messages: map[string]string{
			"min":            label + " percentage cannot be negative",
			"max":            label + " percentage cannot exceed 100",
			tagDecimalPlaces: label + " percentage must have at most 2 decimal places",
			"type":           label + " percentage must be a number",
		},
	}
}

// FoodCreate validates a food creation body.
func (v *Validator) FoodCreate(body []byte) (FoodCreate, error) {
	values, err := v.check(body, schema{rules: foodRules(false)})
	if err != nil {
		return FoodCreate{}, err
	}

	input := FoodCreate{
		Name:       *stringField(values, "name"),
		Preference: *stringField(values, "preference"),
	}
	if notes := stringField(values, "notes"); notes != nil {
		input.Notes = *notes
	}
	if quantity := intField(values, "inventoryQuantity"); quantity != nil {
		input.InventoryQuantity = *quantity
	}
	if archived := boolField(values, "archived"); archived != nil {
		input.Archived = *archived
	}
	if value := floatField(values, "phosphorusDmb"); value != nil {
		input.PhosphorusDmb = *value
	}
	if value := floatField(values, "proteinDmb"); value != nil {
		input.ProteinDmb = *value
	}
	if value := floatField(values, "fatDmb"); value != nil {
		input.FatDmb = *value
	}
	if value := floatField(values, "fiberDmb"); value != nil {
		input.FiberDmb = *value
	}
	return input, nil
}

// FoodUpdate validates a partial food update body.
func (v *Validator) FoodUpdate(body []byte) (FoodPatch, error) {
	values, err := v.check(body, schema{rules: foodRules(true), partial: true})
	if err != nil {
		return FoodPatch{}, err
	}
	return FoodPatch{
		Name:              stringField(values, "name"),
		Preference:        stringField(values, "preference"),
		Notes:             stringField(values, "notes"),
		InventoryQuantity: intField(values, "inventoryQuantity"),
		Archived:          boolField(values, "archived"),
		PhosphorusDmb:     floatField(values, "phosphorusDmb"),
		ProteinDmb:        floatField(values, "proteinDmb"),
		FatDmb:            floatField(values, "fatDmb"),
		FiberDmb:          floatField(values, "fiberDmb"),
	}, nil
}
