// Package pipeline orchestrates the per-contact categorization sequence:
// fetch contact → gather web context → classify → write back to the CRM.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-categorizer/internal/config"
	"github.com/sells-group/lead-categorizer/internal/model"
	"github.com/sells-group/lead-categorizer/internal/store"
	"github.com/sells-group/lead-categorizer/pkg/anthropic"
	"github.com/sells-group/lead-categorizer/pkg/hubspot"
	"github.com/sells-group/lead-categorizer/pkg/perplexity"
)

// contactProperties are the HubSpot properties fetched for each contact.
var contactProperties = []string{"email", "company"}

// Options controls a single pipeline run.
type Options struct {
	// TestMode processes exactly one contact and skips CRM writes.
	TestMode bool
	// Limit caps how many contacts are processed. 0 means the whole list.
	Limit int
	// DryRun skips CRM writes but processes the full batch.
	DryRun bool
}

// Pipeline drives categorization for the contacts of one CRM list.
// Contacts are processed sequentially; a failure on one contact never
// aborts the rest of the batch.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	hubspot    hubspot.Client
	search     perplexity.Client
	ai         anthropic.Client
	categories model.CategorySet
	prompts    *Prompts
}

// New creates a Pipeline with all dependencies. The category set and prompt
// templates are resolved once here, from configuration.
func New(
	cfg *config.Config,
	st store.Store,
	hsClient hubspot.Client,
	searchClient perplexity.Client,
	aiClient anthropic.Client,
) (*Pipeline, error) {
	labels, err := cfg.Categories.Values()
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, eris.New("pipeline: no category labels configured")
	}

	prompts, err := NewPrompts(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:        cfg,
		store:      st,
		hubspot:    hsClient,
		search:     searchClient,
		ai:         aiClient,
		categories: model.NewCategorySet(labels, cfg.Categories.Fallback),
		prompts:    prompts,
	}, nil
}

// Run fetches the configured list and categorizes each member. Per-contact
// failures are recorded and counted; only list-level failures (cannot fetch
// memberships, cannot create the run record) return an error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunReport, error) {
	listID := p.cfg.HubSpot.ListID
	log := zap.L().With(zap.String("list_id", listID))

	limit := opts.Limit
	if opts.TestMode {
		limit = 1
	}
	dryRun := opts.DryRun || opts.TestMode

	run, err := p.store.CreateRun(ctx, listID, opts.TestMode)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting categorization run",
		zap.Bool("test_mode", opts.TestMode),
		zap.Bool("dry_run", dryRun),
		zap.Int("limit", limit),
	)

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusProcessing); err != nil {
		log.Warn("pipeline: failed to update run status", zap.Error(err))
	}

	contactIDs, err := p.hubspot.ListMemberships(ctx, listID, limit)
	if err != nil {
		p.finishRun(ctx, run.ID, model.RunStatusFailed, &model.RunReport{}, log)
		return nil, eris.Wrapf(err, "pipeline: list memberships for %s", listID)
	}
	log.Info("pipeline: fetched list memberships", zap.Int("contacts", len(contactIDs)))

	report := &model.RunReport{}
	for i, contactID := range contactIDs {
		if err := ctx.Err(); err != nil {
			p.finishRun(ctx, run.ID, model.RunStatusFailed, report, log)
			return report, eris.Wrap(err, "pipeline: run canceled")
		}

		result := p.processContact(ctx, run.ID, contactID, dryRun)
		report.Add(result)

		if _, err := p.store.RecordContact(ctx, result); err != nil {
			log.Warn("pipeline: failed to record contact result",
				zap.String("contact_id", contactID),
				zap.Error(err),
			)
		}

		log.Info("pipeline: contact processed",
			zap.Int("index", i+1),
			zap.Int("total", len(contactIDs)),
			zap.String("contact_id", contactID),
			zap.String("stage", string(result.Stage)),
			zap.Bool("succeeded", result.Succeeded),
		)
	}

	p.finishRun(ctx, run.ID, model.RunStatusComplete, report, log)
	log.Info("pipeline: run complete",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

// ProcessContact categorizes a single contact by ID outside a list run,
// recording it under its own single-contact run. Used by the webhook server.
func (p *Pipeline) ProcessContact(ctx context.Context, contactID string, dryRun bool) (model.ContactResult, error) {
	run, err := p.store.CreateRun(ctx, p.cfg.HubSpot.ListID, false)
	if err != nil {
		return model.ContactResult{}, eris.Wrap(err, "pipeline: create run")
	}

	result := p.processContact(ctx, run.ID, contactID, dryRun)
	report := &model.RunReport{}
	report.Add(result)

	if _, err := p.store.RecordContact(ctx, result); err != nil {
		zap.L().Warn("pipeline: failed to record contact result",
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
	}
	p.finishRun(ctx, run.ID, model.RunStatusComplete, report, zap.L())

	return result, nil
}

// processContact runs the FETCH → CONTEXT → CLASSIFY → WRITE sequence for
// one contact. Any stage error produces a failed result carrying the stage;
// it never propagates to the batch.
func (p *Pipeline) processContact(ctx context.Context, runID, contactID string, dryRun bool) model.ContactResult {
	result := model.ContactResult{
		RunID:     runID,
		ContactID: contactID,
		Stage:     model.StageFetch,
	}
	log := zap.L().With(zap.String("contact_id", contactID))

	// FETCH
	hsContact, err := p.hubspot.GetContact(ctx, contactID, contactProperties)
	if err != nil {
		return failResult(result, err, log)
	}
	contact := model.Contact{
		ID:      hsContact.ID,
		Email:   hsContact.Properties["email"],
		Company: hsContact.Properties["company"],
	}
	result.Company = contact.Identifier()

	if contact.Identifier() == "" {
		// Nothing to categorize; skip rather than fail.
		log.Warn("pipeline: contact has no company name or email domain, skipping")
		return result
	}

	// CONTEXT
	result.Stage = model.StageContext
	snippet, err := p.gatherContext(ctx, contact)
	if err != nil {
		return failResult(result, err, log)
	}

	// CLASSIFY
	result.Stage = model.StageClassify
	category, err := p.classify(ctx, contact.Identifier(), snippet)
	if err != nil {
		return failResult(result, err, log)
	}
	result.Category = category

	// WRITE
	result.Stage = model.StageWrite
	if dryRun {
		log.Info("pipeline: dry run, skipping CRM write",
			zap.String("category", category),
		)
	} else if err := p.writeResult(ctx, contactID, category, snippet); err != nil {
		return failResult(result, err, log)
	}

	result.Stage = model.StageDone
	result.Succeeded = true
	return result
}

// writeResult persists the category and context snippet onto the contact's
// configured custom properties. One PATCH sets both, and re-running with the
// same values leaves the record unchanged.
func (p *Pipeline) writeResult(ctx context.Context, contactID, category, snippet string) error {
	if snippet == "" {
		snippet = noContextFallback
	}
	properties := map[string]string{
		p.cfg.HubSpot.CategoryProperty: category,
		p.cfg.HubSpot.ContextProperty:  snippet,
	}
	return p.hubspot.UpdateContact(ctx, contactID, properties)
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport, log *zap.Logger) {
	if err := p.store.CompleteRun(ctx, runID, status, report); err != nil {
		log.Warn("pipeline: failed to save run report", zap.Error(err))
	}
}

func failResult(result model.ContactResult, err error, log *zap.Logger) model.ContactResult {
	result.Error = err.Error()
	log.Error("pipeline: contact failed",
		zap.String("stage", string(result.Stage)),
		zap.Error(err),
	)
	return result
}
