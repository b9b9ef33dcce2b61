package clover

import (
	"encoding/json"

	"github.com/Gobusters/ectolinq"
)

// SecretColumns are never copied out of a record into events, audit rows or responses.
var SecretColumns = []string{"password_hash", "token_hash"}

// RecordMap converts a record into its JSON field map without SecretColumns. When selected is
// non-empty only those keys are kept; omitted keys are dropped.
func RecordMap(rec any, selected, omitted []string) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	for k := range values {
		switch {
		case ectolinq.Contains(SecretColumns, k), ectolinq.Contains(omitted, k):
			delete(values, k)
		case len(selected) > 0 && !ectolinq.Contains(selected, k):
			delete(values, k)
		}
	}
	return values, nil
}

// GlobalOmit returns the columns of model hidden by Options.Omit.
func (db *DB) GlobalOmit(model string) []string {
	return db.opts.Omit[model]
}
