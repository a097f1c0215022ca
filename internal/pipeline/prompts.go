package pipeline

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-categorizer/internal/config"
)

// Default prompt templates. Operators can override any of them through
// config; the same template fields are available in both cases.
const (
	defaultSystemTemplate = `You classify companies into exactly one of the following categories: {{.Categories}}. Respond with the single best-matching category name and nothing else.`

	defaultUserTemplate = `Company: {{.Company}}

Web context:
{{.Context}}

Respond with exactly one of: {{.Categories}}.`

	defaultSearchTemplate = `In 3-4 sentences, describe what the company "{{.Company}}"{{if .Domain}} (domain: {{.Domain}}){{end}} does: its industry, products or services, and customers.`
)

// promptData is the field set available to all prompt templates.
type promptData struct {
	Company    string
	Domain     string
	Context    string
	Categories string
}

// Prompts holds the parsed classification and search templates.
type Prompts struct {
	system *template.Template
	user   *template.Template
	search *template.Template
}

// NewPrompts parses the configured templates, falling back to the defaults
// for any empty field.
func NewPrompts(cfg config.PromptConfig) (*Prompts, error) {
	system, err := parsePrompt("system", cfg.System, defaultSystemTemplate)
	if err != nil {
		return nil, err
	}
	user, err := parsePrompt("user", cfg.User, defaultUserTemplate)
	if err != nil {
		return nil, err
	}
	search, err := parsePrompt("search_query", cfg.SearchQuery, defaultSearchTemplate)
	if err != nil {
		return nil, err
	}
	return &Prompts{system: system, user: user, search: search}, nil
}

func parsePrompt(name, src, fallback string) (*template.Template, error) {
	if strings.TrimSpace(src) == "" {
		src = fallback
	}
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse %s prompt template", name)
	}
	return t, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", eris.Wrapf(err, "pipeline: render %s prompt", t.Name())
	}
	return b.String(), nil
}
