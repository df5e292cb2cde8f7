// Package pipeline holds the end-to-end scenario test that drives a domain
// from intake through pretext drafting against real stage implementations.
package pipeline

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/aggregate"
	"github.com/sells-group/recon-pipeline/internal/discovery"
	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/pretext"
	"github.com/sells-group/recon-pipeline/internal/profile"
	"github.com/sells-group/recon-pipeline/internal/recon"
	"github.com/sells-group/recon-pipeline/internal/scrape"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/anthropic"
	"github.com/sells-group/recon-pipeline/pkg/hunter"
)

type fakeResolver struct {
	mx      []*net.MX
	txt     map[string][]string
	txtErrs map[string]error
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	return f.mx, nil
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err := f.txtErrs[name]; err != nil {
		return nil, err
	}
	return f.txt[name], nil
}

type stubSearcher struct {
	result *hunter.DomainSearchResult
}

func (s *stubSearcher) DomainSearch(ctx context.Context, domain string, limit int) (*hunter.DomainSearchResult, error) {
	return s.result, nil
}

type scriptedClient struct {
	responses []string
}

func (c *scriptedClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if len(c.responses) == 0 {
		return nil, context.DeadlineExceeded
	}
	text := c.responses[0]
	c.responses = c.responses[1:]
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}, nil
}

func TestDomainToPretextDraft(t *testing.T) {
	ctx := context.Background()
	const domain = "acme.com"
	const email = "a@acme.com"

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	notifier := notify.Nop{}
	agg := aggregate.New(s, notifier)

	// Discovery: MX and SPF resolve, the DMARC lookup fails and leaves the
	// column null.
	resolver := &fakeResolver{
		mx:  []*net.MX{{Host: "mail.acme.com.", Pref: 10}},
		txt: map[string][]string{domain: {"v=spf1 include:_spf.acme.com ~all"}},
		txtErrs: map[string]error{
			"_dmarc." + domain: &net.DNSError{Err: "no such host", Name: "_dmarc." + domain},
		},
	}
	require.NoError(t, s.EnsureDomain(ctx, domain))
	require.NoError(t, discovery.NewWithResolver(s, notifier, resolver, time.Second).Run(ctx, domain))

	d, err := s.GetDomain(ctx, domain)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NotNil(t, d.MX)
	require.NotNil(t, d.SPF)
	assert.Nil(t, d.DMARC)

	// Intake: one contact with two sources, one reachable and one pointing at
	// a server that is already gone.
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>Al Acme, head of procurement.</html>"))
	}))
	t.Cleanup(okServer.Close)

	deadServer := httptest.NewServer(http.NotFoundHandler())
	deadURL := deadServer.URL
	deadServer.Close()

	searcher := &stubSearcher{result: &hunter.DomainSearchResult{
		Pattern: "{first}",
		Emails: []hunter.Email{{
			Value:     email,
			FirstName: "Al",
			LastName:  "Acme",
			Sources: []hunter.Source{
				{Domain: "acme.com", URI: okServer.URL, ExtractedOn: "2021-03-01"},
				{Domain: "acme.com", URI: deadURL, ExtractedOn: "2022-06-15"},
			},
		}},
	}}
	summary, err := recon.New(s, notifier, searcher, 10).Run(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Targets)
	assert.Equal(t, 2, summary.Sources)

	target, err := s.GetTarget(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, model.TargetStatusPending, target.Status)
	require.NotNil(t, target.TenureStart)
	assert.Equal(t, 2021, target.TenureStart.Year())

	// Scrape: one source mines, one fails, and settlement of the second one
	// advances the target.
	scraper := scrape.New(s, notifier, agg, scrape.Options{Timeout: 2 * time.Second})
	sources, err := s.UnminedSourcesForTargets(ctx, []string{email})
	require.NoError(t, err)
	require.Len(t, sources, 2)
	for _, src := range sources {
		err := scraper.Run(ctx, src.ID, src.URL)
		require.NoError(t, err)
	}

	mined, err := s.MinedSources(ctx, email)
	require.NoError(t, err)
	require.Len(t, mined, 1)

	target, err = s.GetTarget(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusEnriched, target.Status)

	// Profile: the direct tier answers on the first call.
	profClient := &scriptedClient{responses: []string{
		"Al Acme runs procurement at Acme and is reachable by email.",
	}}
	require.NoError(t, profile.New(s, notifier, profClient, "test-model", 1024, 0.2).Run(ctx, email))

	target, err = s.GetTarget(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusComplete, target.Status)
	require.NotNil(t, target.Profile)
	assert.Contains(t, *target.Profile, "procurement")

	// Pretext: a valid prompt id yields exactly one draft row.
	promptID, err := s.InsertPrompt(ctx, model.Prompt{
		Name:         "vendor-intro",
		Template:     "Write to the person described here: {{target_profile}}",
		SystemPrompt: "You draft short vendor introduction emails.",
		Dos:          "keep it under 100 words",
		Donts:        "no attachments",
	})
	require.NoError(t, err)

	pretextClient := &scriptedClient{responses: []string{
		`{"subject":"Quick intro","body":"Hi Al, a short note.","link":"https://example.com/brief"}`,
	}}
	pretextID, err := pretext.New(s, notifier, pretextClient, "test-model", 1024, 0.7).Run(ctx, email, promptID)
	require.NoError(t, err)
	require.NotZero(t, pretextID)

	drafts, err := s.ListPretextsForTarget(ctx, email)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, model.PretextStatusDraft, drafts[0].Status)
	assert.Equal(t, "Quick intro", drafts[0].Subject)
}
