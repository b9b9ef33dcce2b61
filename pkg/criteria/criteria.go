// Package criteria evaluates segment criteria against clients.
// Criteria is a JSON object keyed by field path. A plain value means equality,
// an object maps operators to operands: {"customFields.tier": {"$in": ["gold"]}}.
package criteria

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Supported operators
const (
	OpEquals   = ""          // default, no prefix - simple equality
	OpContains = "$contains" // array contains value
	OpIn       = "$in"       // value is in array of options
	OpGte      = "$gte"      // greater than or equal
	OpGt       = "$gt"       // greater than
	OpLte      = "$lte"      // less than or equal
	OpLt       = "$lt"       // less than
	OpExists   = "$exists"   // field exists (value should be bool)
	OpNe       = "$ne"       // not equal
)

var operators = map[string]bool{
	OpContains: true, OpIn: true, OpGte: true, OpGt: true, OpLte: true, OpLt: true, OpExists: true, OpNe: true,
}

// Condition represents a single field condition to evaluate
type Condition struct {
	Field    string
	Operator string
	Value    any
}

func (c Condition) String() string {
	if c.Operator == OpEquals {
		return fmt.Sprintf("%s = %v", c.Field, c.Value)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// ParseCriteria converts a criteria map to conditions ordered by field then operator.
// Format: {"field": "value"} for equality, {"field": {"$op": "value"}} for operators
func ParseCriteria(criteria map[string]any) []Condition {
	var conditions []Condition

	for field, value := range criteria {
		switch v := value.(type) {
		case map[string]any:
			for op, opValue := range v {
				conditions = append(conditions, Condition{
					Field:    field,
					Operator: op,
					Value:    opValue,
				})
			}
		default:
			conditions = append(conditions, Condition{
				Field:    field,
				Operator: OpEquals,
				Value:    v,
			})
		}
	}

	sort.Slice(conditions, func(i, j int) bool {
		if conditions[i].Field != conditions[j].Field {
			return conditions[i].Field < conditions[j].Field
		}
		return conditions[i].Operator < conditions[j].Operator
	})
	return conditions
}

// Validate rejects unknown fields, unknown operators and malformed operands.
func Validate(criteria map[string]any) error {
	for _, cond := range ParseCriteria(criteria) {
		if err := validateCondition(cond); err != nil {
			return err
		}
	}
	return nil
}

func validateCondition(cond Condition) error {
	if !knownField(cond.Field) {
		return fmt.Errorf("unknown criteria field %q", cond.Field)
	}
	if cond.Operator == OpEquals {
		return nil
	}
	if !operators[cond.Operator] {
		return fmt.Errorf("unknown operator %q on field %q", cond.Operator, cond.Field)
	}
	switch cond.Operator {
	case OpIn:
		if _, ok := toSlice(cond.Value); !ok {
			return fmt.Errorf("%s on field %q expects an array", cond.Operator, cond.Field)
		}
	case OpExists:
		if _, ok := cond.Value.(bool); !ok {
			return fmt.Errorf("%s on field %q expects a boolean", cond.Operator, cond.Field)
		}
	case OpGte, OpGt, OpLte, OpLt:
		if _, ok := toFloat64(cond.Value); !ok {
			return fmt.Errorf("%s on field %q expects a number", cond.Operator, cond.Field)
		}
	}
	return nil
}

// MatchesDocument reports whether doc satisfies every condition.
func MatchesDocument(eval *Evaluator, doc map[string]any, conditions []Condition) bool {
	for _, cond := range conditions {
		if !evaluateCondition(eval, doc, cond) {
			return false
		}
	}
	return true
}

func evaluateCondition(eval *Evaluator, data map[string]any, cond Condition) bool {
	value, exists := eval.Lookup(cond.Field, data)

	switch cond.Operator {
	case OpEquals:
		if !exists {
			return cond.Value == nil
		}
		return valuesEqual(value, cond.Value)

	case OpNe:
		if !exists {
			return cond.Value != nil
		}
		return !valuesEqual(value, cond.Value)

	case OpExists:
		expectExists, ok := cond.Value.(bool)
		if !ok {
			return false
		}
		return exists == expectExists

	case OpContains:
		if !exists {
			return false
		}
		arr, ok := toSlice(value)
		if !ok {
			return false
		}
		for _, item := range arr {
			if valuesEqual(item, cond.Value) {
				return true
			}
		}
		return false

	case OpIn:
		if !exists {
			return false
		}
		options, ok := toSlice(cond.Value)
		if !ok {
			return false
		}
		for _, opt := range options {
			if valuesEqual(value, opt) {
				return true
			}
		}
		return false

	case OpGte, OpGt, OpLte, OpLt:
		if !exists {
			return false
		}
		return compareNumeric(value, cond.Operator, cond.Value)

	default:
		return false
	}
}

// valuesEqual compares two values with type coercion
func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	// float64 from JSON against ints from Go. Strings never equal numbers, as in jsonb.
	if isNumber(a) && isNumber(b) {
		af, _ := toFloat64(a)
		bf, _ := toFloat64(b)
		return af == bf
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, json.Number:
		return true
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	default:
		val := reflect.ValueOf(v)
		if val.Kind() == reflect.Slice {
			result := make([]any, val.Len())
			for i := 0; i < val.Len(); i++ {
				result[i] = val.Index(i).Interface()
			}
			return result, true
		}
		return nil, false
	}
}

func compareNumeric(actual any, op string, expected any) bool {
	actualNum, ok := toFloat64(actual)
	if !ok {
		return false
	}

	expectedNum, ok := toFloat64(expected)
	if !ok {
		return false
	}

	switch op {
	case OpGte:
		return actualNum >= expectedNum
	case OpGt:
		return actualNum > expectedNum
	case OpLte:
		return actualNum <= expectedNum
	case OpLt:
		return actualNum < expectedNum
	default:
		return false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// HashCriteria generates a deterministic hash of criteria.
// encoding/json sorts map keys, so equal criteria hash equally.
func HashCriteria(criteria map[string]any) string {
	data, _ := json.Marshal(criteria)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SplitCriteria separates simple equality conditions from complex operator conditions.
func SplitCriteria(criteria map[string]any) (simple map[string]any, complex []Condition) {
	simple = make(map[string]any)

	for _, cond := range ParseCriteria(criteria) {
		if cond.Operator == OpEquals {
			simple[cond.Field] = cond.Value
			continue
		}
		complex = append(complex, cond)
	}

	return simple, complex
}

// BuildJSONBContainment nests dotted equality paths into a document for a jsonb @> query.
func BuildJSONBContainment(simple map[string]any) map[string]any {
	if len(simple) == 0 {
		return nil
	}

	result := make(map[string]any)
	for field, value := range simple {
		setNestedValue(result, strings.Split(field, "."), value)
	}
	return result
}

func setNestedValue(m map[string]any, path []string, value any) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}

	key := path[0]
	if _, exists := m[key]; !exists {
		m[key] = make(map[string]any)
	}

	if nested, ok := m[key].(map[string]any); ok {
		setNestedValue(nested, path[1:], value)
	}
}
