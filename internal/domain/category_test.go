package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       []Category
		wantFields []string
	}{
		{
			name: "canonical",
			raw:  `[{"category":"communication","value":4},{"category":"cleanliness","value":5}]`,
			want: []Category{{"communication", 4}, {"cleanliness", 5}},
		},
		{
			name: "rating key and name key",
			raw:  `[{"name":"communication","rating":3}]`,
			want: []Category{{"communication", 3}},
		},
		{
			name: "numeric string score",
			raw:  `[{"category":" repairs ","value":"2"}]`,
			want: []Category{{"repairs", 2}},
		},
		{
			name: "agreeing value and rating",
			raw:  `[{"category":"noise","value":1,"rating":1}]`,
			want: []Category{{"noise", 1}},
		},
		{
			name:       "conflicting value and rating",
			raw:        `[{"category":"noise","value":1,"rating":2}]`,
			wantFields: []string{"categories[0].value"},
		},
		{
			name:       "bare string",
			raw:        `["communication"]`,
			wantFields: []string{"categories[0]"},
		},
		{
			name:       "out of range",
			raw:        `[{"category":"a","value":0},{"category":"b","value":6}]`,
			wantFields: []string{"categories[0].value", "categories[1].value"},
		},
		{
			name:       "fractional",
			raw:        `[{"category":"a","value":4.5}]`,
			wantFields: []string{"categories[0].value"},
		},
		{
			name:       "missing name",
			raw:        `[{"value":3}]`,
			wantFields: []string{"categories[0].category"},
		},
		{
			name:       "empty list",
			raw:        `[]`,
			wantFields: []string{"categories"},
		},
		{
			name:       "null",
			raw:        `null`,
			wantFields: []string{"categories"},
		},
		{
			name:       "object instead of list",
			raw:        `{"communication":4}`,
			wantFields: []string{"categories"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCategories(json.RawMessage(tt.raw))
			if tt.wantFields != nil {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
				assert.Equal(t, tt.wantFields, verr.Fields)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func FuzzParseCategories(f *testing.F) {
	seeds := []string{
		`[{"category":"communication","value":4}]`,
		`[{"name":"x","rating":"5"}]`,
		`["plain"]`,
		`[{"category":"x","value":1e309}]`,
		``,
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		cats, err := ParseCategories(json.RawMessage(raw))
		if err != nil {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			return
		}
		if len(cats) == 0 {
			t.Fatalf("success must yield at least one category")
		}
		for _, c := range cats {
			if c.Value < MinCategoryValue || c.Value > MaxCategoryValue {
				t.Fatalf("value %d out of range", c.Value)
			}
			if c.Category == "" {
				t.Fatalf("empty category name accepted")
			}
		}
	})
}
