package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-categorizer/internal/config"
	"github.com/sells-group/lead-categorizer/internal/model"
	"github.com/sells-group/lead-categorizer/internal/resilience"
	"github.com/sells-group/lead-categorizer/internal/store"
	"github.com/sells-group/lead-categorizer/pkg/anthropic"
	"github.com/sells-group/lead-categorizer/pkg/hubspot"
	"github.com/sells-group/lead-categorizer/pkg/perplexity"
)

// -- fakes --

type fakeHubSpot struct {
	memberships    []string
	membershipsErr error
	contacts       map[string]*hubspot.Contact
	getErr         map[string]error
	updateErr      map[string]error

	listedLimit int
	updates     []update
}

type update struct {
	contactID  string
	properties map[string]string
}

func (f *fakeHubSpot) ListMemberships(_ context.Context, _ string, limit int) ([]string, error) {
	f.listedLimit = limit
	if f.membershipsErr != nil {
		return nil, f.membershipsErr
	}
	if limit > 0 && limit < len(f.memberships) {
		return f.memberships[:limit], nil
	}
	return f.memberships, nil
}

func (f *fakeHubSpot) GetContact(_ context.Context, contactID string, _ []string) (*hubspot.Contact, error) {
	if err := f.getErr[contactID]; err != nil {
		return nil, err
	}
	c, ok := f.contacts[contactID]
	if !ok {
		return nil, eris.Errorf("contact not found: %s", contactID)
	}
	return c, nil
}

func (f *fakeHubSpot) UpdateContact(_ context.Context, contactID string, properties map[string]string) error {
	if err := f.updateErr[contactID]; err != nil {
		return err
	}
	f.updates = append(f.updates, update{contactID: contactID, properties: properties})
	return nil
}

type fakeSearch struct {
	answer  string
	err     error
	queries []string
}

func (f *fakeSearch) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return nil, eris.New("not used")
}

func (f *fakeSearch) Research(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.answer, f.err
}

type fakeAI struct {
	answer   string
	err      error
	requests []anthropic.MessageRequest
}

func (f *fakeAI) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Model:      req.Model,
		Text:       f.answer,
		StopReason: "end_turn",
	}, nil
}

// -- helpers --

func testConfig() *config.Config {
	return &config.Config{
		HubSpot: config.HubSpotConfig{
			Token:            "tok",
			ListID:           "42",
			CategoryProperty: "company_category",
			ContextProperty:  "company_context",
		},
		Anthropic: config.AnthropicConfig{
			Key:       "ak",
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 64,
		},
		Categories: config.CategoryConfig{
			Labels:   "SaaS,Retail,Manufacturing",
			Fallback: "Other",
		},
	}
}

func testStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPipeline(t *testing.T, hs *fakeHubSpot, search *fakeSearch, ai *fakeAI) (*Pipeline, store.Store) {
	t.Helper()

	st := testStore(t)
	p, err := New(testConfig(), st, hs, search, ai)
	require.NoError(t, err)
	return p, st
}

func acmeContacts() map[string]*hubspot.Contact {
	return map[string]*hubspot.Contact{
		"101": {ID: "101", Properties: map[string]string{"email": "jane@acme.com", "company": "Acme Corp"}},
		"102": {ID: "102", Properties: map[string]string{"email": "bob@globex.com", "company": "Globex"}},
	}
}

// -- tests --

func TestRun_CategorizesWholeList(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101", "102"}, contacts: acmeContacts()}
	search := &fakeSearch{answer: "Acme builds accounting software."}
	ai := &fakeAI{answer: "SaaS"}
	p, st := newTestPipeline(t, hs, search, ai)

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Skipped)

	require.Len(t, hs.updates, 2)
	assert.Equal(t, "101", hs.updates[0].contactID)
	assert.Equal(t, "SaaS", hs.updates[0].properties["company_category"])
	assert.Equal(t, "Acme builds accounting software.", hs.updates[0].properties["company_context"])

	// One search query and one classification per contact.
	assert.Len(t, search.queries, 2)
	assert.Len(t, ai.requests, 2)
	assert.Contains(t, search.queries[0], "Acme Corp")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Report)
	assert.Equal(t, 2, runs[0].Report.Succeeded)

	results, err := st.ListContactResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.StageDone, results[0].Stage)
	assert.True(t, results[0].Succeeded)
}

func TestRun_TestModeProcessesOneContactWithoutWrites(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101", "102"}, contacts: acmeContacts()}
	ai := &fakeAI{answer: "SaaS"}
	p, st := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, ai)

	report, err := p.Run(context.Background(), Options{TestMode: true})
	require.NoError(t, err)

	assert.Equal(t, 1, hs.listedLimit)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, hs.updates, "test mode must not write to the CRM")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].TestMode)
}

func TestRun_DryRunSkipsWrites(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101", "102"}, contacts: acmeContacts()}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, &fakeAI{answer: "Retail"})

	report, err := p.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, hs.updates)
}

// A failure on one contact never aborts the rest of the batch.
func TestRun_ContactFailureIsIsolated(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{
		memberships: []string{"101", "102"},
		contacts:    acmeContacts(),
		updateErr: map[string]error{
			"101": resilience.NewUpstreamError("hubspot", 500, eris.New("internal error")),
		},
	}
	p, st := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, &fakeAI{answer: "SaaS"})

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, hs.updates, 1)
	assert.Equal(t, "102", hs.updates[0].contactID)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)

	results, err := st.ListContactResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.StageWrite, results[0].Stage)
	assert.False(t, results[0].Succeeded)
	assert.Contains(t, results[0].Error, "500")
	assert.True(t, results[1].Succeeded)
}

func TestRun_SkipsContactWithoutIdentity(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{
		memberships: []string{"103"},
		contacts: map[string]*hubspot.Contact{
			"103": {ID: "103", Properties: map[string]string{"email": "", "company": ""}},
		},
	}
	search := &fakeSearch{}
	ai := &fakeAI{answer: "SaaS"}
	p, _ := newTestPipeline(t, hs, search, ai)

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, search.queries, "no identity means nothing to search for")
	assert.Empty(t, ai.requests)
	assert.Empty(t, hs.updates)
}

func TestRun_EmailDomainFallback(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{
		memberships: []string{"104"},
		contacts: map[string]*hubspot.Contact{
			"104": {ID: "104", Properties: map[string]string{"email": "pat@initech.io"}},
		},
	}
	search := &fakeSearch{answer: "Initech sells TPS report software."}
	p, _ := newTestPipeline(t, hs, search, &fakeAI{answer: "SaaS"})

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, search.queries, 1)
	assert.Contains(t, search.queries[0], "initech.io")
}

// An unmatched model answer is written as the fallback label, never verbatim.
func TestRun_UnmatchedAnswerUsesFallback(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, &fakeAI{answer: "Finance"})

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, hs.updates, 1)
	assert.Equal(t, "Other", hs.updates[0].properties["company_category"])
}

// Empty web context is not an error: classification proceeds and the stored
// snippet is the documented placeholder.
func TestRun_EmptyContextStillClassifies(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	ai := &fakeAI{answer: "SaaS"}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: ""}, ai)

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, ai.requests, 1)
	require.Len(t, ai.requests[0].Messages, 1)
	assert.Contains(t, ai.requests[0].Messages[0].Content, noContextFallback)
	require.Len(t, hs.updates, 1)
	assert.Equal(t, noContextFallback, hs.updates[0].properties["company_context"])
}

func TestRun_LongContextIsTruncated(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	long := strings.Repeat("x", maxSnippetLen+500)
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: long}, &fakeAI{answer: "SaaS"})

	_, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, hs.updates, 1)
	assert.Len(t, hs.updates[0].properties["company_context"], maxSnippetLen)
}

func TestRun_SearchFailureFailsContactAtContextStage(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	search := &fakeSearch{err: resilience.NewUpstreamError("perplexity", 503, eris.New("overloaded"))}
	p, st := newTestPipeline(t, hs, search, &fakeAI{answer: "SaaS"})

	report, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	results, err := st.ListContactResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StageContext, results[0].Stage)
}

func TestRun_MembershipFailureFailsRun(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{
		membershipsErr: resilience.NewUpstreamError("hubspot", 403, eris.New("forbidden")),
	}
	p, st := newTestPipeline(t, hs, &fakeSearch{}, &fakeAI{})

	_, err := p.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101", "102"}, contacts: acmeContacts()}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, &fakeAI{answer: "SaaS"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Options{})
	require.Error(t, err)
	assert.Empty(t, hs.updates)
}

func TestProcessContact(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	p, st := newTestPipeline(t, hs, &fakeSearch{answer: "Acme builds software."}, &fakeAI{answer: "SaaS"})

	result, err := p.ProcessContact(context.Background(), "101", false)
	require.NoError(t, err)

	assert.True(t, result.Succeeded)
	assert.Equal(t, "SaaS", result.Category)
	assert.Equal(t, "Acme Corp", result.Company)
	require.Len(t, hs.updates, 1)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	results, err := st.ListContactResults(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "101", results[0].ContactID)
}

func TestProcessContact_DryRun(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, &fakeAI{answer: "SaaS"})

	result, err := p.ProcessContact(context.Background(), "101", true)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Empty(t, hs.updates)
}

func TestNew_RequiresCategoryLabels(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Categories.Labels = ""

	_, err := New(cfg, testStore(t), &fakeHubSpot{}, &fakeSearch{}, &fakeAI{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no category labels")
}

func TestNew_InvalidPromptTemplate(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Prompts.System = "{{.Broken"

	_, err := New(cfg, testStore(t), &fakeHubSpot{}, &fakeSearch{}, &fakeAI{})
	require.Error(t, err)
}

func TestClassify_PassesModelSettings(t *testing.T) {
	t.Parallel()

	hs := &fakeHubSpot{memberships: []string{"101"}, contacts: acmeContacts()}
	ai := &fakeAI{answer: "SaaS"}
	p, _ := newTestPipeline(t, hs, &fakeSearch{answer: "context"}, ai)

	_, err := p.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, ai.requests, 1)
	req := ai.requests[0]
	assert.Equal(t, "claude-haiku-4-5-20251001", req.Model)
	assert.Equal(t, int64(64), req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, classifyTemperature, *req.Temperature, 0.001)
	assert.Contains(t, req.System, "SaaS, Retail, Manufacturing")
}
