package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-categorizer/internal/config"
)

func TestNewPrompts_Defaults(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts(config.PromptConfig{})
	require.NoError(t, err)

	system, err := render(p.system, promptData{Categories: "SaaS, Retail"})
	require.NoError(t, err)
	assert.Contains(t, system, "SaaS, Retail")
	assert.Contains(t, system, "nothing else")

	user, err := render(p.user, promptData{
		Company:    "Acme Corp",
		Context:    "Acme builds accounting software.",
		Categories: "SaaS, Retail",
	})
	require.NoError(t, err)
	assert.Contains(t, user, "Acme Corp")
	assert.Contains(t, user, "accounting software")
	assert.Contains(t, user, "SaaS, Retail")
}

func TestNewPrompts_SearchTemplateOmitsEmptyDomain(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts(config.PromptConfig{})
	require.NoError(t, err)

	withDomain, err := render(p.search, promptData{Company: "Acme Corp", Domain: "acme.com"})
	require.NoError(t, err)
	assert.Contains(t, withDomain, `"Acme Corp"`)
	assert.Contains(t, withDomain, "acme.com")

	noDomain, err := render(p.search, promptData{Company: "Acme Corp"})
	require.NoError(t, err)
	assert.NotContains(t, noDomain, "domain")
}

func TestNewPrompts_ConfigOverride(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts(config.PromptConfig{
		System: "Pick one of {{.Categories}}.",
	})
	require.NoError(t, err)

	system, err := render(p.system, promptData{Categories: "A, B"})
	require.NoError(t, err)
	assert.Equal(t, "Pick one of A, B.", system)

	// Unset fields still use the defaults.
	user, err := render(p.user, promptData{Company: "Acme", Categories: "A, B"})
	require.NoError(t, err)
	assert.Contains(t, user, "Company: Acme")
}

func TestNewPrompts_InvalidTemplate(t *testing.T) {
	t.Parallel()

	_, err := NewPrompts(config.PromptConfig{User: "{{.Company"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user prompt template")
}

func TestRender_UnknownField(t *testing.T) {
	t.Parallel()

	p, err := NewPrompts(config.PromptConfig{System: "{{.DoesNotExist}}"})
	require.NoError(t, err)

	_, err = render(p.system, promptData{})
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab", truncate("abcd", 2))
	assert.Equal(t, "", truncate("", 10))
}

// A cut falling inside a multibyte rune must back up to the rune boundary
// so the stored snippet stays valid UTF-8.
func TestTruncate_RuneBoundary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "h", truncate("héllo", 2))   // é is 2 bytes
	assert.Equal(t, "hé", truncate("héllo", 3))
	assert.Equal(t, "日", truncate("日本語", 4)) // each rune is 3 bytes
	assert.Equal(t, "日", truncate("日本語", 5))
	assert.Equal(t, "日本", truncate("日本語", 6))

	long := strings.Repeat("ü", maxSnippetLen) // 2 bytes per rune
	got := truncate(long, maxSnippetLen)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxSnippetLen)
}
