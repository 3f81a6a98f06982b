package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Kind string `json:"kind" validate:"required"`
}

type color string

func (c color) Valid() bool { return c == "red" || c == "blue" }

type sample struct {
	Name   string   `json:"name" validate:"required,max=5"`
	Mode   string   `json:"mode" validate:"required,oneof=a b"`
	Score  *float64 `json:"score" validate:"omitempty,min=0,max=100"`
	Items  []string `json:"items" validate:"omitempty,max=2"`
	Nested *nested  `json:"nested" validate:"omitempty"`
}

func TestValidateStructCollectsEveryField(t *testing.T) {
	score := 150.0
	err := ValidateStruct(&sample{
		Name:   "toolong",
		Mode:   "c",
		Score:  &score,
		Items:  []string{"x", "y", "z"},
		Nested: &nested{},
	})
	require.Error(t, err)

	ve, ok := AsValidationError(err)
	require.True(t, ok)

	fields := map[string]string{}
	for _, f := range ve.Fields {
		fields[f.Field] = f.Tag
	}

	assert.Equal(t, map[string]string{
		"name":        "max",
		"mode":        "oneof",
		"score":       "max",
		"items":       "max",
		"nested.kind": "required",
	}, fields)
}

func TestValidateStructPasses(t *testing.T) {
	zero := 0.0
	assert.NoError(t, ValidateStruct(&sample{Name: "ok", Mode: "a", Score: &zero}))
}

func TestValidateStructMergesExtraErrors(t *testing.T) {
	err := ValidateStruct(&sample{Name: "ok", Mode: "a"}, FieldError{Field: "endDate", Tag: "gtefield", Message: "endDate must be after startDate"})
	require.Error(t, err)

	ve, ok := AsValidationError(err)
	require.True(t, ok)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "endDate", ve.Fields[0].Field)
	assert.Equal(t, "endDate must be after startDate", ve.Error())
}

func TestTranslatedMessages(t *testing.T) {
	err := ValidateStruct(&sample{Mode: "z"})
	ve, ok := AsValidationError(err)
	require.True(t, ok)

	messages := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		messages = append(messages, f.Message)
	}
	assert.Contains(t, messages, "name is required")
	assert.Contains(t, messages, "mode must be one of: a b")
}

func TestCustomTags(t *testing.T) {
	type input struct {
		ID    string `json:"id" validate:"required,notblank"`
		Color color  `json:"color" validate:"omitempty,enum"`
	}

	tests := []struct {
		name   string
		in     input
		fields map[string]string
	}{
		{"valid", input{ID: "a", Color: "red"}, map[string]string{}},
		{"empty color skipped", input{ID: "a"}, map[string]string{}},
		{"blank id", input{ID: " \t "}, map[string]string{"id": "notblank"}},
		{"unknown color", input{ID: "a", Color: "green"}, map[string]string{"color": "enum"}},
		{"both", input{ID: "  ", Color: "pink"}, map[string]string{"id": "notblank", "color": "enum"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			if ve, ok := AsValidationError(ValidateStruct(tt.in)); ok {
				for _, f := range ve.Fields {
					fields[f.Field] = f.Tag
				}
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}
