package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klyr/lure/internal/signature"
)

// Category is the traffic class of an event.
type Category string

const (
	CategoryScan   Category = "scan"
	CategorySpam   Category = "spam"
	CategoryAttack Category = "attack"
)

func ParseCategory(raw string) (Category, error) {
	switch c := Category(raw); c {
	case CategoryScan, CategorySpam, CategoryAttack:
		return c, nil
	default:
		return "", fmt.Errorf("unknown event category %q", raw)
	}
}

func (c Category) Value() (driver.Value, error) {
	if _, err := ParseCategory(string(c)); err != nil {
		return nil, err
	}
	return string(c), nil
}

func (c *Category) Scan(src any) error {
	raw, err := asString(src)
	if err != nil {
		return err
	}
	parsed, err := ParseCategory(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Event is one logged request with its derived classification.
type Event struct {
	ID               string    `db:"id" json:"id"`
	Method           string    `db:"method" json:"method"`
	Path             string    `db:"request_path" json:"request_path"`
	CorrelationToken Text      `db:"correlation_token" json:"correlation_token"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	IP           Text `db:"ip_address" json:"ip_address"`
	ForwardedFor Text `db:"forwarded_for" json:"forwarded_for"`
	Geo          Text `db:"geo_location" json:"geo_location"`
	UserAgent    Text `db:"agent" json:"agent"`
	Referer      Text `db:"referer" json:"referer"`
	Origin       Text `db:"origin" json:"origin"`
	Language     Text `db:"language" json:"language"`
	Email        Text `db:"email" json:"email"`

	Data         Data       `db:"data" json:"data"`
	DataPresent  bool       `db:"data_present" json:"data_present"`
	FieldCount   int        `db:"field_count" json:"field_count"`
	TargetFields StringList `db:"target_fields" json:"target_fields"`

	AttackAttempted bool     `db:"attack_attempted" json:"attack_attempted"`
	Category        Category `db:"event_category" json:"event_category"`
}

// Finding is one signature match against one field of an event.
type Finding struct {
	ID          string             `db:"id" json:"id"`
	EventID     string             `db:"event_id" json:"event_id"`
	TargetField string             `db:"target_field" json:"target_field"`
	Pattern     string             `db:"pattern" json:"pattern"`
	Category    signature.Category `db:"category" json:"category"`
	RawValue    string             `db:"raw_value" json:"raw_value"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`

	// Decoded marks a match found in the URL/HTML-decoded value. RawValue is
	// then decoded text, not a substring of the submitted field.
	Decoded bool `db:"decoded" json:"decoded"`
}

// Record is an event together with every finding it owns. It is the unit
// that is persisted atomically.
type Record struct {
	Event    Event     `json:"event"`
	Findings []Finding `json:"findings"`
}

// Text is a string stored as NULL and encoded as JSON null when empty.
type Text string

func (t Text) String() string { return string(t) }

func (t Text) Value() (driver.Value, error) {
	if t == "" {
		return nil, nil
	}
	return string(t), nil
}

func (t *Text) Scan(src any) error {
	if src == nil {
		*t = ""
		return nil
	}
	raw, err := asString(src)
	if err != nil {
		return err
	}
	*t = Text(raw)
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *Text) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*t = ""
		return nil
	}
	*t = Text(*s)
	return nil
}

// Data is the submitted field map, each field collapsed to its first value.
type Data map[string]string

func (d Data) Value() (driver.Value, error) {
	if d == nil {
		d = Data{}
	}
	b, err := json.Marshal(map[string]string(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Data) Scan(src any) error {
	if src == nil {
		*d = Data{}
		return nil
	}
	raw, err := asString(src)
	if err != nil {
		return err
	}
	out := Data{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("data: %w", err)
	}
	*d = out
	return nil
}

// StringList is an ordered list stored as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = StringList{}
		return nil
	}
	raw, err := asString(src)
	if err != nil {
		return err
	}
	out := StringList{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	*l = out
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func asString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}
