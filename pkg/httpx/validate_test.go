package httpx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognitohub/platform/pkg/httpx"
)

func TestValidateRequired(t *testing.T) {
	t.Run("flags a missing required field", func(t *testing.T) {
		specs := []httpx.FieldSpec{{Name: "topic", Kind: httpx.KindString, Required: true}}

		msg := httpx.Validate(httpx.Values{}, specs)

		assert.Contains(t, msg, "topic is required")
	})

	t.Run("passes when the field is present", func(t *testing.T) {
		specs := []httpx.FieldSpec{{Name: "topic", Kind: httpx.KindString, Required: true}}

		msg := httpx.Validate(httpx.Values{"topic": "algebra"}, specs)

		assert.Empty(t, msg)
	})

	t.Run("skips optional fields that are absent", func(t *testing.T) {
		specs := []httpx.FieldSpec{{Name: "difficulty", Kind: httpx.KindString}}

		msg := httpx.Validate(httpx.Values{}, specs)

		assert.Empty(t, msg)
	})
}

func TestValidateStringConstraints(t *testing.T) {
	specs := []httpx.FieldSpec{{Name: "topic", Kind: httpx.KindString, MinLen: 3, MaxLen: 5}}

	t.Run("rejects too short", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"topic": "ab"}, specs)
		assert.Contains(t, msg, "at least 3")
	})

	t.Run("rejects too long", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"topic": "abcdef"}, specs)
		assert.Contains(t, msg, "at most 5")
	})

	t.Run("rejects the wrong type", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"topic": 5}, specs)
		assert.Contains(t, msg, "must be a string")
	})
}

func TestValidateEnum(t *testing.T) {
	specs := []httpx.FieldSpec{{Name: "difficulty", Kind: httpx.KindString, Enum: []string{"easy", "medium", "hard"}}}

	t.Run("accepts an enum member", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"difficulty": "medium"}, specs)
		assert.Empty(t, msg)
	})

	t.Run("rejects a value outside the enum", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"difficulty": "impossible"}, specs)
		assert.Contains(t, msg, "must be one of")
	})
}

func TestValidateNumericRange(t *testing.T) {
	specs := []httpx.FieldSpec{{Name: "numQuestions", Kind: httpx.KindInt, HasRange: true, MinValue: 1, MaxValue: 50}}

	t.Run("accepts a value in range", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"numQuestions": 10.0}, specs)
		assert.Empty(t, msg)
	})

	t.Run("rejects a value above the range", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"numQuestions": 100.0}, specs)
		assert.Contains(t, msg, "between")
	})

	t.Run("rejects a non-numeric value", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"numQuestions": "ten"}, specs)
		assert.Contains(t, msg, "must be numeric")
	})
}

func TestValidateBool(t *testing.T) {
	specs := []httpx.FieldSpec{{Name: "useAdaptive", Kind: httpx.KindBool}}

	t.Run("accepts a bool", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"useAdaptive": true}, specs)
		assert.Empty(t, msg)
	})

	t.Run("rejects a non-bool", func(t *testing.T) {
		msg := httpx.Validate(httpx.Values{"useAdaptive": "yes"}, specs)
		assert.Contains(t, msg, "must be a boolean")
	})
}

func TestValidateStopsAtFirstViolation(t *testing.T) {
	t.Run("reports only the first failing spec", func(t *testing.T) {
		specs := []httpx.FieldSpec{
			{Name: "topic", Kind: httpx.KindString, Required: true},
			{Name: "numQuestions", Kind: httpx.KindInt, Required: true},
		}

		msg := httpx.Validate(httpx.Values{"numQuestions": 5.0}, specs)

		assert.Contains(t, msg, "topic is required")
	})
}
