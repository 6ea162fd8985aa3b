package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, the way the portal UI sends them
	decimal.MarshalJSONWithoutQuotes = true
}

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// jsonValue encodes v for a JSONB column
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)

	if err != nil {
		return nil, err
	}

	return string(b), nil
}

// jsonScan decodes a JSONB column into dest
func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
