package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DateLayout is the calendar date format accepted for meal dates.
	DateLayout = "2006-01-02"

	tagDecimalPlaces = "dmb"
	tagAmount        = "amount"
	tagISODate       = "isodate"
	tagMealDateRange = "mealdaterange"

	bodyField = "body"

	amountUnits = "g|ml|oz|lb|kg|can|cans|cup|cups|tbsp|tsp|pouch|pouches"
)

var (
	// MinMealDate is the earliest meal date accepted.
	MinMealDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	isoDatePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	fieldErrorPattern = regexp.MustCompile(`^([^:]+):\s*(.+)$`)

	errExpectedNumber  = errors.New("expected number")
	errExpectedInteger = errors.New("expected integer")
	errExpectedString  = errors.New("expected string")
	errExpectedBoolean = errors.New("expected boolean")
)

// Options tunes validator behaviour.
type Options struct {
	// AmountUnitRequired rejects amounts without a unit suffix such as "100".
	AmountUnitRequired bool
	Clock              func() time.Time
}

// Validator checks food and meal payloads against strict schemas.
type Validator struct {
	validate      *validator.Validate
	amountPattern *regexp.Regexp
	clock         func() time.Time
}

// New constructs a Validator.
func New(options Options) *Validator {
	clock := options.Clock
	if clock == nil {
		clock = time.Now
	}

	unitSuffix := "(" + amountUnits + ")"
	if !options.AmountUnitRequired {
		unitSuffix += "?"
	}

	v := &Validator{
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		amountPattern: regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*` + unitSuffix + `$`),
		clock:         clock,
	}

	mustRegister(v.validate, tagDecimalPlaces, func(fl validator.FieldLevel) bool {
		scaled := fl.Field().Float() * 100
		return math.Abs(scaled-math.Round(scaled)) < 1e-6
	})
	mustRegister(v.validate, tagAmount, func(fl validator.FieldLevel) bool {
		return v.amountPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	mustRegister(v.validate, tagISODate, func(fl validator.FieldLevel) bool {
		_, ok := parseISODate(fl.Field().String())
		return ok
	})
	mustRegister(v.validate, tagMealDateRange, func(fl validator.FieldLevel) bool {
		date, ok := parseISODate(fl.Field().String())
		if !ok {
			return false
		}
		return !date.Before(MinMealDate) && !date.After(v.latestMealDate())
	})

	return v
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func parseISODate(value string) (time.Time, bool) {
	if !isoDatePattern.MatchString(value) {
		return time.Time{}, false
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// latestMealDate is tomorrow in UTC.
func (v *Validator) latestMealDate() time.Time {
	now := v.clock().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, 1)
}

// Error carries ordered "{field}: {message}" validation details.
type Error struct {
	Details []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// FieldMessages converts validation details into a field to message map.
// When a field reports more than one problem the first one wins.
func FieldMessages(details []string) map[string]string {
	messages := make(map[string]string, len(details))
	for _, detail := range details {
		match := fieldErrorPattern.FindStringSubmatch(detail)
		if match == nil {
			continue
		}
		field := strings.TrimSpace(match[1])
		if _, exists := messages[field]; exists {
			continue
		}
		messages[field] = strings.TrimSpace(match[2])
	}
	return messages
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInteger
	kindDecimal
	kindBoolean
)

// fieldRule declares one recognised key of a strict schema.
type fieldRule struct {
	name     string
	kind     fieldKind
	tag      string
	required bool
	// normalize rewrites a decoded string before its rules run.
	normalize func(string) string
	// messages maps a failing validator tag to the user facing message.
	// The "type" entry is used when the JSON value has the wrong shape.
	messages map[string]string
}

type schema struct {
	rules []fieldRule
	// partial marks update schemas: every key optional but at least one present.
	partial bool
}

type decodedFields map[string]any

// check runs a schema over a raw JSON body.
func (v *Validator) check(body []byte, s schema) (decodedFields, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &Error{Details: []string{bodyField + ": Expected a JSON object"}}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &Error{Details: []string{bodyField + ": Invalid JSON"}}
	}

	if s.partial && len(raw) == 0 {
		return nil, &Error{Details: []string{bodyField + ": At least one field must be provided for update"}}
	}

	details := make([]string, 0)
	values := make(decodedFields, len(raw))
	known := make(map[string]struct{}, len(s.rules))

	for _, rule := range s.rules {
		known[rule.name] = struct{}{}
		rawValue, present := raw[rule.name]
		if !present {
			if rule.required && !s.partial {
				details = append(details, formatDetail(rule.name, rule.message("required")))
			}
			continue
		}

		value, err := decodeValue(rawValue, rule.kind)
		if err != nil {
			tag := "type"
			if errors.Is(err, errExpectedInteger) {
				tag = "integer"
			}
			details = append(details, formatDetail(rule.name, rule.message(tag)))
			continue
		}

		if text, ok := value.(string); ok && rule.normalize != nil {
			value = rule.normalize(text)
		}
		if rule.tag != "" {
			if err := v.validate.Var(value, rule.tag); err != nil {
				details = append(details, formatDetail(rule.name, rule.message(failedTag(err))))
				continue
			}
		}
		values[rule.name] = value
	}

	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		details = append(details, formatDetail(key, "Unrecognized field"))
	}

	if len(details) > 0 {
		return nil, &Error{Details: details}
	}
	return values, nil
}

func failedTag(err error) string {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		return fieldErrors[0].Tag()
	}
	return "type"
}

func formatDetail(field, message string) string {
	return fmt.Sprintf("%s: %s", field, message)
}

func (r fieldRule) message(tag string) string {
	if message, ok := r.messages[tag]; ok {
		return message
	}
	switch tag {
	case "required":
		return "Required"
	case "integer":
		if message, ok := r.messages["type"]; ok {
			return message
		}
		return "Expected integer"
	case "type":
		return "Invalid type"
	default:
		return fmt.Sprintf("Failed %s check", tag)
	}
}

func decodeValue(raw json.RawMessage, kind fieldKind) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	switch kind {
	case kindString:
		text, ok := value.(string)
		if !ok {
			return nil, errExpectedString
		}
		return text, nil
	case kindBoolean:
		flag, ok := value.(bool)
		if !ok {
			return nil, errExpectedBoolean
		}
		return flag, nil
	case kindDecimal:
		number, ok := value.(json.Number)
		if !ok {
			return nil, errExpectedNumber
		}
		parsed, err := number.Float64()
		if err != nil {
			return nil, errExpectedNumber
		}
		return parsed, nil
	case kindInteger:
		number, ok := value.(json.Number)
		if !ok {
			return nil, errExpectedNumber
		}
		parsed, err := number.Float64()
		if err != nil {
			return nil, errExpectedNumber
		}
		if parsed != math.Trunc(parsed) || math.Abs(parsed) > math.MaxInt32 {
			return nil, errExpectedInteger
		}
		return int(parsed), nil
	default:
		return nil, fmt.Errorf("unsupported field kind %d", kind)
	}
}

func stringField(values decodedFields, name string) *string {
	if value, ok := values[name].(string); ok {
		return &value
	}
	return nil
}

func intField(values decodedFields, name string) *int {
	if value, ok := values[name].(int); ok {
		return &value
	}
	return nil
}

func floatField(values decodedFields, name string) *float64 {
	if value, ok := values[name].(float64); ok {
		return &value
	}
	return nil
}

func boolField(values decodedFields, name string) *bool {
	if value, ok := values[name].(bool); ok {
		return &value
	}
	return nil
}
