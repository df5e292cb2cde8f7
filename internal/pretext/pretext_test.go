package pretext

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/anthropic"
)

type stubClient struct {
	mu       sync.Mutex
	response string
	err      error
	requests []anthropic.MessageRequest
}

func (c *stubClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: c.response}},
		StopReason: "end_turn",
	}, nil
}

type eventCapture struct {
	mu     sync.Mutex
	events []string
}

func (c *eventCapture) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func newTestSetup(t *testing.T, response string) (*Stage, store.Store, *stubClient, *eventCapture) {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	client := &stubClient{response: response}
	notifier := &eventCapture{}
	return New(s, notifier, client, "test-model", 1000, 0.7), s, client, notifier
}

func seedCompleteTarget(t *testing.T, s store.Store, email string) int64 {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, s.UpsertTarget(ctx, model.Target{Email: email, Name: "Jo Smith", DomainName: "acme.example"}))
	require.NoError(t, s.UpdateTargetStatus(ctx, email, model.TargetStatusEnriched))
	require.NoError(t, s.UpdateTargetProfile(ctx, email, "Jo Smith runs engineering at Acme."))
	require.NoError(t, s.UpdateTargetStatus(ctx, email, model.TargetStatusComplete))

	promptID, err := s.InsertPrompt(ctx, model.Prompt{
		Name:         "it-helpdesk",
		Template:     "Profile: {{target_profile}}\nWrite the email.",
		SystemPrompt: "You draft plausible workplace email.",
		Dos:          "Keep it under 120 words",
		Donts:        "No artificial urgency",
	})
	require.NoError(t, err)
	return promptID
}

func TestRunGeneratesDraft(t *testing.T) {
	stage, s, client, notifier := newTestSetup(t,
		`{"subject":"Password audit","body":"Hi Jo, please confirm your directory entry.","link":"https://portal.example/confirm"}`)
	ctx := context.Background()

	promptID := seedCompleteTarget(t, s, "jo@acme.example")
	id, err := stage.Run(ctx, "jo@acme.example", promptID)
	require.NoError(t, err)
	require.NotZero(t, id)

	pretexts, err := s.ListPretextsForTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	require.Len(t, pretexts, 1)
	assert.Equal(t, "Password audit", pretexts[0].Subject)
	assert.Equal(t, model.PretextStatusDraft, pretexts[0].Status)
	assert.Equal(t, "https://portal.example/confirm", pretexts[0].Link)

	// The profile is substituted into the rendered prompt.
	assert.Contains(t, pretexts[0].PromptText, "Jo Smith runs engineering at Acme.")
	assert.NotContains(t, pretexts[0].PromptText, "{{target_profile}}")

	// System instruction carries the constraints and the JSON-only rule.
	require.Len(t, client.requests, 1)
	system := client.requests[0].System
	assert.Contains(t, system, "You draft plausible workplace email.")
	assert.Contains(t, system, "Keep it under 120 words")
	assert.Contains(t, system, "No artificial urgency")
	assert.Contains(t, system, "JSON object only")

	assert.Contains(t, notifier.events, "pretextGenerated")

	// Target status is untouched.
	target, err := s.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.TargetStatusComplete, target.Status)
}

func TestRunRequiresCompleteTarget(t *testing.T) {
	stage, s, _, _ := newTestSetup(t, `{}`)
	ctx := context.Background()

	require.NoError(t, s.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, s.UpsertTarget(ctx, model.Target{Email: "jo@acme.example", Name: "Jo", DomainName: "acme.example"}))

	_, err := stage.Run(ctx, "jo@acme.example", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want complete")
}

func TestRunRequiresExistingPrompt(t *testing.T) {
	stage, s, _, _ := newTestSetup(t, `{}`)
	ctx := context.Background()

	seedCompleteTarget(t, s, "jo@acme.example")
	_, err := stage.Run(ctx, "jo@acme.example", 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt not found")
}

func TestRunRecoversJSONFromProse(t *testing.T) {
	stage, s, _, _ := newTestSetup(t,
		`noise{"subject":"A","body":"B"}noise`)
	ctx := context.Background()

	promptID := seedCompleteTarget(t, s, "jo@acme.example")
	_, err := stage.Run(ctx, "jo@acme.example", promptID)
	require.NoError(t, err)

	pretexts, err := s.ListPretextsForTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	require.Len(t, pretexts, 1)
	assert.Equal(t, "A", pretexts[0].Subject)
	assert.Equal(t, "B", pretexts[0].Body)
}

func TestRunFailsOnUnparseableOutput(t *testing.T) {
	stage, s, _, _ := newTestSetup(t, "I cannot produce that.")
	ctx := context.Background()

	promptID := seedCompleteTarget(t, s, "jo@acme.example")
	_, err := stage.Run(ctx, "jo@acme.example", promptID)
	require.Error(t, err)

	pretexts, err := s.ListPretextsForTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Empty(t, pretexts)
}

func TestParseDraftNewlineNormalization(t *testing.T) {
	d, err := parseDraft("Here you go:\n{\"subject\":\"A\",\"body\":\"line one\nline two\"}")
	require.NoError(t, err)
	assert.Equal(t, "A", d.Subject)
	assert.Equal(t, "line one\nline two", d.Body)
}

func TestParseDraftDirect(t *testing.T) {
	d, err := parseDraft(`{"subject":"S","body":"B","link":"L"}`)
	require.NoError(t, err)
	assert.Equal(t, "S", d.Subject)
	assert.Equal(t, "B", d.Body)
	assert.Equal(t, "L", d.Link)
}
