package criteria

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clover"
)

const customFieldsPrefix = "customFields."

var clientFields = map[string]bool{
	"id":           true,
	"status":       true,
	"companyName":  true,
	"contactName":  true,
	"email":        true,
	"phone":        true,
	"assignedToId": true,
	"tags":         true,
	"customFields": true,
}

func knownField(field string) bool {
	if strings.HasPrefix(field, customFieldsPrefix) {
		return len(field) > len(customFieldsPrefix)
	}
	return clientFields[field]
}

var defaultEvaluator = NewEvaluator()

// Compiled is segment criteria split into the part the database filters and
// the part evaluated in Go.
type Compiled struct {
	Conditions []Condition
	// Predicate is nil when nothing could be pushed down.
	Predicate clover.Predicate[clover.Client]
	Residual  []Condition
}

// Compile validates criteria and pushes what it can into a client predicate.
func Compile(criteria map[string]any) (*Compiled, error) {
	if err := Validate(criteria); err != nil {
		return nil, err
	}

	compiled := &Compiled{Conditions: ParseCriteria(criteria)}
	var preds []clover.Predicate[clover.Client]
	containment := map[string]any{}

	for _, cond := range compiled.Conditions {
		if path, ok := customFieldPath(cond.Field); ok && cond.Operator == OpEquals && cond.Value != nil {
			if isScalar(cond.Value) {
				containment[strings.Join(path, ".")] = cond.Value
				continue
			}
			// @> would accept supersets, so arrays and objects narrow by path and are rechecked in Go
			preds = append(preds, clover.ClientFields.CustomFields.PathEquals(path, cond.Value))
			compiled.Residual = append(compiled.Residual, cond)
			continue
		}
		if pred := pushDown(cond); pred != nil {
			preds = append(preds, pred)
			continue
		}
		compiled.Residual = append(compiled.Residual, cond)
	}

	if doc := BuildJSONBContainment(containment); doc != nil {
		preds = append(preds, clover.ClientFields.CustomFields.Contains(doc))
	}
	if len(preds) > 0 {
		compiled.Predicate = clover.And(preds...)
	}
	return compiled, nil
}

// ToClientPredicate returns the pushable predicate and the conditions left for Matches.
func ToClientPredicate(criteria map[string]any) (clover.Predicate[clover.Client], []Condition, error) {
	compiled, err := Compile(criteria)
	if err != nil {
		return nil, nil, err
	}
	return compiled.Predicate, compiled.Residual, nil
}

// Matches evaluates every condition against c.
func (c *Compiled) Matches(client clover.Client) bool {
	return MatchesDocument(defaultEvaluator, ClientDocument(client), c.Conditions)
}

// MatchesResidual evaluates only the conditions the predicate did not cover.
func (c *Compiled) MatchesResidual(client clover.Client) bool {
	if len(c.Residual) == 0 {
		return true
	}
	return MatchesDocument(defaultEvaluator, ClientDocument(client), c.Residual)
}

// Matches reports whether client satisfies criteria.
func Matches(client clover.Client, criteria map[string]any) (bool, error) {
	compiled, err := Compile(criteria)
	if err != nil {
		return false, err
	}
	return compiled.Matches(client), nil
}

// ClientDocument is the JSON shape criteria paths resolve against.
func ClientDocument(c clover.Client) map[string]any {
	doc := map[string]any{
		"id":           c.ID.String(),
		"status":       string(c.Status),
		"companyName":  c.CompanyName,
		"contactName":  c.ContactName,
		"email":        c.Email,
		"phone":        c.Phone,
		"tags":         c.Tags.Data,
		"customFields": c.CustomFields.Data,
	}
	if c.AssignedToID != nil {
		doc["assignedToId"] = c.AssignedToID.String()
	}

	// normalize to encoding/json types so JMESPath sees maps, []any and float64
	b, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return doc
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array && rv.Kind() != reflect.Map
}

func customFieldPath(field string) ([]string, bool) {
	if !strings.HasPrefix(field, customFieldsPrefix) {
		return nil, false
	}
	return strings.Split(strings.TrimPrefix(field, customFieldsPrefix), "."), true
}

func pushDown(cond Condition) clover.Predicate[clover.Client] {
	if path, ok := customFieldPath(cond.Field); ok {
		switch cond.Operator {
		case OpIn:
			values, _ := toSlice(cond.Value)
			return clover.ClientFields.CustomFields.PathIn(path, values...)
		case OpExists:
			if cond.Value == true {
				return clover.ClientFields.CustomFields.PathExists(path)
			}
		}
		// numeric casts fail on non-numeric text, so ranges stay in Go
		return nil
	}

	switch cond.Field {
	case "status":
		return pushStatus(cond)
	case "companyName":
		if s, ok := cond.Value.(string); ok && cond.Operator == OpEquals {
			return clover.ClientFields.CompanyName.Equals(s)
		}
	case "contactName", "email", "phone":
		s, ok := cond.Value.(string)
		if !ok || cond.Operator != OpEquals {
			return nil
		}
		switch cond.Field {
		case "contactName":
			return clover.ClientFields.ContactName.Equals(s)
		case "email":
			return clover.ClientFields.Email.Equals(s)
		default:
			return clover.ClientFields.Phone.Equals(s)
		}
	case "assignedToId":
		s, ok := cond.Value.(string)
		if !ok || cond.Operator != OpEquals {
			return nil
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil
		}
		return clover.ClientFields.AssignedToID.Equals(id)
	case "tags":
		if cond.Operator == OpContains && cond.Value != nil {
			return clover.ClientFields.Tags.ArrayContains(cond.Value)
		}
	}
	return nil
}

func pushStatus(cond Condition) clover.Predicate[clover.Client] {
	switch cond.Operator {
	case OpEquals:
		if s, ok := cond.Value.(string); ok {
			return clover.ClientFields.Status.Equals(clover.ClientStatus(s))
		}
	case OpNe:
		if s, ok := cond.Value.(string); ok {
			return clover.ClientFields.Status.Not(clover.ClientStatus(s))
		}
	case OpIn:
		values, _ := toSlice(cond.Value)
		statuses := make([]clover.ClientStatus, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			statuses = append(statuses, clover.ClientStatus(s))
		}
		return clover.ClientFields.Status.In(statuses...)
	}
	return nil
}
