package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testLabels = []string{"SaaS", "Retail", "Manufacturing", "Healthcare"}

func TestNewCategorySet_DefaultFallback(t *testing.T) {
	t.Parallel()

	s := NewCategorySet(testLabels, "")
	assert.Equal(t, DefaultFallback, s.Fallback)

	s = NewCategorySet(testLabels, "Uncategorized")
	assert.Equal(t, "Uncategorized", s.Fallback)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	s := NewCategorySet(testLabels, "Other")

	tests := []struct {
		name        string
		answer      string
		want        string
		wantMatched bool
	}{
		{"exact", "SaaS", "SaaS", true},
		{"case insensitive", "saas", "SaaS", true},
		{"uppercase", "RETAIL", "Retail", true},
		{"whitespace trimmed", "  Healthcare  ", "Healthcare", true},
		{"label inside sentence", "The category is SaaS.", "SaaS", true},
		{"label inside lowercase sentence", "this company is in retail", "Retail", true},
		{"unknown answer", "Finance", "Other", false},
		{"empty answer", "", "Other", false},
		{"whitespace only", "   ", "Other", false},
		{"refusal text", "I cannot determine the category.", "Other", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, matched := s.Match(tt.answer)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}
}

// Match must never produce text outside the configured labels plus fallback,
// no matter what the model answers.
func TestMatch_ClosedOverLabels(t *testing.T) {
	t.Parallel()

	s := NewCategorySet(testLabels, "Other")
	answers := []string{
		"SaaS", "saas", "Finance", "", "The best fit is Manufacturing",
		"Retail and Healthcare", "garbage ☃ answer", "OTHER",
	}

	for _, a := range answers {
		got, _ := s.Match(a)
		assert.True(t, s.Contains(got), "Match(%q) produced %q outside the set", a, got)
	}
}

func TestMatch_FirstLabelWinsOnContainment(t *testing.T) {
	t.Parallel()

	// Labels are matched in configured order when several appear in the answer.
	s := NewCategorySet([]string{"Retail", "SaaS"}, "Other")
	got, matched := s.Match("could be SaaS or Retail")
	assert.True(t, matched)
	assert.Equal(t, "Retail", got)
}

func TestContains(t *testing.T) {
	t.Parallel()

	s := NewCategorySet(testLabels, "Other")
	assert.True(t, s.Contains("SaaS"))
	assert.True(t, s.Contains("Other"))
	assert.False(t, s.Contains("saas")) // Contains is exact, unlike Match
	assert.False(t, s.Contains("Finance"))
}
