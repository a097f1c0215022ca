package model

import "strings"

// CategorySet is the closed, ordered set of category labels a company may be
// assigned, plus the fallback label used when a model answer matches none of
// them. Match never returns text outside Labels ∪ {Fallback}.
type CategorySet struct {
	Labels   []string
	Fallback string
}

// DefaultFallback is used when no fallback label is configured.
const DefaultFallback = "Other"

// NewCategorySet builds a CategorySet from configured labels and fallback.
func NewCategorySet(labels []string, fallback string) CategorySet {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return CategorySet{Labels: labels, Fallback: fallback}
}

// Match maps raw model output to a configured label. Resolution order:
// exact match, case-insensitive match, then containment of a label inside
// the answer (models often reply "The category is SaaS."). Anything else
// resolves to the fallback with matched=false.
func (s CategorySet) Match(answer string) (category string, matched bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s.Fallback, false
	}

	for _, l := range s.Labels {
		if answer == l {
			return l, true
		}
	}
	for _, l := range s.Labels {
		if strings.EqualFold(answer, l) {
			return l, true
		}
	}
	lower := strings.ToLower(answer)
	for _, l := range s.Labels {
		if strings.Contains(lower, strings.ToLower(l)) {
			return l, true
		}
	}

	return s.Fallback, false
}

// Contains reports whether label is a member of the set (fallback included).
func (s CategorySet) Contains(label string) bool {
	if label == s.Fallback {
		return true
	}
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}
