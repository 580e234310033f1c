// Package db holds column types shared by the store and the models.
package db

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice maps a []string onto a JSONB column. A NULL column scans as an
// empty slice and a nil slice is written as "[]".
type StringSlice []string

func (s *StringSlice) Scan(src any) error {
	if s == nil {
		return fmt.Errorf("db: Scan on nil *StringSlice")
	}
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = StringSlice{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("db: cannot scan %T into StringSlice", src)
	}
	out := StringSlice{}
	if err := json.Unmarshal(raw, (*[]string)(&out)); err != nil {
		return fmt.Errorf("db: decode StringSlice: %w", err)
	}
	*s = out
	return nil
}

// Value encodes the slice as JSON text. Text rather than []byte, since lib/pq
// sends []byte parameters as bytea.
func (s StringSlice) Value() (driver.Value, error) {
	items := []string(s)
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("db: encode StringSlice: %w", err)
	}
	return string(b), nil
}

// NullString returns a NULL for the empty string so optional text columns
// stay NULL instead of holding "".
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
