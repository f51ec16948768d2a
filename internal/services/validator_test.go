package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/scriptstudio/backend/internal/models"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestNewValidator_LoadsAllOperations(t *testing.T) {
	v := newTestValidator(t)

	for _, op := range []string{models.OperationAnalyzeReference, models.OperationGenerateScript, models.OperationDailyTrends} {
		if _, ok := v.inputSchemas[op]; !ok {
			t.Errorf("missing input schema for %q", op)
		}
		if _, ok := v.outputSchemas[op]; !ok {
			t.Errorf("missing output schema for %q", op)
		}
	}
	if got := len(v.inputSchemas); got != 3 {
		t.Errorf("expected 3 input schemas, got %d", got)
	}
}

func TestValidateInput_Valid(t *testing.T) {
	v := newTestValidator(t)

	cases := map[string]string{
		models.OperationAnalyzeReference: `{"videoUrl":"https://youtube.com/watch?v=abc","niche":"cooking"}`,
		models.OperationGenerateScript:   `{"theme":"budget travel","duration":"short","previousTaskId":"t-1"}`,
		models.OperationDailyTrends:      `{"niche":"fitness","count":5}`,
	}
	for op, input := range cases {
		t.Run(op, func(t *testing.T) {
			if err := v.ValidateInput(op, json.RawMessage(input)); err != nil {
				t.Fatalf("expected valid input, got: %v", err)
			}
		})
	}
}

func TestValidateInput_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name  string
		op    string
		input string
	}{
		{"missing videoUrl", models.OperationAnalyzeReference, `{"niche":"x"}`},
		{"videoUrl not a url", models.OperationAnalyzeReference, `{"videoUrl":"not a url"}`},
		{"theme too short (minLength 3)", models.OperationGenerateScript, `{"theme":"ab"}`},
		{"unknown duration", models.OperationGenerateScript, `{"theme":"valid theme","duration":"epic"}`},
		{"count above 20", models.OperationDailyTrends, `{"count":21}`},
		{"count zero", models.OperationDailyTrends, `{"count":0}`},
		{"unknown field (additionalProperties: false)", models.OperationDailyTrends, `{"count":3,"extra":"boom"}`},
		{"malformed json", models.OperationDailyTrends, `{"count":`},
		{"unknown operation", "render_video", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateInput(tc.op, json.RawMessage(tc.input))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidateTrends(t *testing.T) {
	v := newTestValidator(t)

	var good any
	json.Unmarshal([]byte(`[{"title":"AI covers","description":"d","viralScore":85,"category":"News"}]`), &good)
	if err := v.ValidateTrends(good); err != nil {
		t.Fatalf("expected valid trends, got: %v", err)
	}

	var bad any
	json.Unmarshal([]byte(`[{"title":"AI covers","viralScore":150}]`), &bad)
	if err := v.ValidateTrends(bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
}

func TestValidateOutput_TextOperations(t *testing.T) {
	v := newTestValidator(t)

	for _, op := range []string{models.OperationAnalyzeReference, models.OperationGenerateScript} {
		t.Run(op, func(t *testing.T) {
			if err := v.ValidateOutput(op, "Hook: open on the plate."); err != nil {
				t.Fatalf("expected valid output, got: %v", err)
			}
			if err := v.ValidateOutput(op, " \n\t"); !errors.Is(err, ErrValidation) {
				t.Errorf("blank text: expected ErrValidation, got: %v", err)
			}
		})
	}
}
