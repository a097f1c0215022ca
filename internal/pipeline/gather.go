package pipeline

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/lead-categorizer/internal/model"
)

// maxSnippetLen bounds the stored context snippet. Matches the content
// truncation used for classification prompts.
const maxSnippetLen = 2000

// noContextFallback is stored and classified against when the search yields
// nothing usable for a company.
const noContextFallback = "No additional web context available."

// gatherContext runs a web search for the contact's company and returns a
// bounded snippet describing it. An empty search result is not an error:
// classification proceeds with the fallback text.
func (p *Pipeline) gatherContext(ctx context.Context, contact model.Contact) (string, error) {
	query, err := render(p.prompts.search, promptData{
		Company: contact.Identifier(),
		Domain:  contact.EmailDomain(),
	})
	if err != nil {
		return "", err
	}

	answer, err := p.search.Research(ctx, query)
	if err != nil {
		return "", err
	}

	if answer == "" {
		zap.L().Debug("pipeline: no web context found",
			zap.String("contact_id", contact.ID),
			zap.String("company", contact.Identifier()),
		)
		return "", nil
	}

	return truncate(answer, maxSnippetLen), nil
}

// truncate cuts s to at most n bytes without splitting a multibyte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
