package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Item represents a single dish on the menu as returned by the menu API.
// Items are canonical: they are only ever built from a server response.
type Item struct {
	// ID is assigned by the server and never changes once assigned.
	ID int64 `json:"id"`

	// Name is the display name of the dish.
	Name string `json:"name"`

	// Description is a short text describing the dish.
	Description string `json:"description"`

	// Price is expressed in minor currency units.
	Price int64 `json:"price"`

	// Image is the URL of the dish picture.
	Image string `json:"image"`

	// CreatedAt is set by the server when the item is created.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is refreshed by the server on every update.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Form returns the editable projection of the item.
func (i Item) Form() FormData {
	return FormData{
		Name:        i.Name,
		Description: i.Description,
		Price:       i.Price,
		Image:       i.Image,
	}
}

// wireItem mirrors Item with lenient field types so that servers encoding
// identifiers as strings or timestamps as epoch millis still decode.
type wireItem struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.Number     `json:"price"`
	Image       string          `json:"image"`
	CreatedAt   json.RawMessage `json:"createdAt"`
	UpdatedAt   json.RawMessage `json:"updatedAt"`
}

// UnmarshalJSON decodes an item accepting an integer-or-string identifier,
// an integral numeric price and ISO-8601 or epoch-millisecond timestamps.
func (i *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := ParseID(w.ID)
	if err != nil {
		return err
	}

	price, err := parsePrice(w.Price)
	if err != nil {
		return err
	}

	created, err := parseTime(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}

	updated, err := parseTime(w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updatedAt: %w", err)
	}

	*i = Item{
		ID:          id,
		Name:        w.Name,
		Description: w.Description,
		Price:       price,
		Image:       w.Image,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}

	return nil
}

// ParseID decodes a JSON identifier that may be a number or a numeric string.
// Identifiers are positive.
func ParseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("id: missing")
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("id: %w", err)
		}
	} else {
		s = string(raw)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id: invalid value %q", s)
	}

	return id, nil
}

func parsePrice(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}

	if v, err := n.Int64(); err == nil {
		return v, nil
	}

	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("price: invalid value %q", n)
	}

	return int64(f), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
