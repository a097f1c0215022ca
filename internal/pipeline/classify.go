package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-categorizer/pkg/anthropic"
)

// classifyTemperature keeps category answers deterministic.
const classifyTemperature = 0.1

// classify asks the model for a category and maps the answer into the
// configured set. An answer outside the set resolves to the fallback
// sentinel; only API-level failures return an error.
func (p *Pipeline) classify(ctx context.Context, company, snippet string) (string, error) {
	if snippet == "" {
		snippet = noContextFallback
	}

	data := promptData{
		Company:    company,
		Context:    snippet,
		Categories: strings.Join(p.categories.Labels, ", "),
	}

	system, err := render(p.prompts.system, data)
	if err != nil {
		return "", err
	}
	user, err := render(p.prompts.user, data)
	if err != nil {
		return "", err
	}

	temp := classifyTemperature
	resp, err := p.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.cfg.Anthropic.Model,
		MaxTokens:   p.cfg.Anthropic.MaxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogUsage(resp.Model, "classify")

	category, matched := p.categories.Match(resp.Text)
	if !matched {
		zap.L().Warn("pipeline: model answer matched no category, using fallback",
			zap.String("company", company),
			zap.String("answer", truncate(strings.TrimSpace(resp.Text), 120)),
			zap.String("fallback", p.categories.Fallback),
		)
	}

	return category, nil
}
