package signature

import (
	"database/sql/driver"
	"fmt"
)

// Value encodes the category for storage.
func (c Category) Value() (driver.Value, error) {
	if _, err := ParseCategory(string(c)); err != nil {
		return nil, err
	}
	return string(c), nil
}

// Scan decodes a stored category, rejecting values outside the enum.
func (c *Category) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("category: unsupported type %T", src)
	}
	parsed, err := ParseCategory(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
