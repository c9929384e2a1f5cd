// Package jsonb holds the codec shared by columns stored as Postgres JSONB.
package jsonb

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Scan decodes a JSONB column value into dst.
func Scan(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return fmt.Errorf("jsonb: cannot scan %T", src)
}

// Value encodes v for a JSONB column.
func Value(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
