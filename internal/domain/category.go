package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	MinCategoryValue = 1
	MaxCategoryValue = 5
)

// ParseCategories normalizes a category payload into []Category.
//
// Clients send categories in a few historical shapes: objects keyed by
// "category" or "name", scored under "value" or "rating", with the score as a
// number or a numeric string. Anything else, including bare strings, is
// rejected with a ValidationError naming each offending element.
func ParseCategories(raw json.RawMessage) ([]Category, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &ValidationError{Fields: []string{"categories"}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &ValidationError{Fields: []string{"categories"}}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Fields: []string{"categories"}}
	}

	out := make([]Category, 0, len(items))
	var bad []string
	for i, item := range items {
		cat, fields := parseCategory(item)
		if len(fields) > 0 {
			for _, f := range fields {
				bad = append(bad, fmt.Sprintf("categories[%d]%s", i, f))
			}
			continue
		}
		out = append(out, cat)
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}
	return out, nil
}

func parseCategory(raw json.RawMessage) (Category, []string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Category{}, []string{""}
	}

	var bad []string
	name, ok := firstString(obj, "category", "name")
	if !ok || strings.TrimSpace(name) == "" {
		bad = append(bad, ".category")
	}

	value, ok := scoreField(obj)
	if !ok || value < MinCategoryValue || value > MaxCategoryValue {
		bad = append(bad, ".value")
	}
	if len(bad) > 0 {
		return Category{}, bad
	}
	return Category{Category: strings.TrimSpace(name), Value: value}, nil
}

func firstString(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

// scoreField reads "value", falling back to "rating". When both are present
// they must agree.
func scoreField(obj map[string]json.RawMessage) (int, bool) {
	var found []int
	for _, key := range []string{"value", "rating"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		v, ok := parseScore(raw)
		if !ok {
			return 0, false
		}
		found = append(found, v)
	}
	switch len(found) {
	case 1:
		return found[0], true
	case 2:
		return found[0], found[0] == found[1]
	default:
		return 0, false
	}
}

func parseScore(raw json.RawMessage) (int, bool) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return wholeNumber(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return wholeNumber(num)
}

func wholeNumber(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
