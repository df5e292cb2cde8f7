// Package profile synthesizes a narrative profile for a target from its
// mined sources, degrading through three tiers when the completion service
// cannot handle the direct request.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/anthropic"
)

const (
	// Per-source and total character budgets for the direct tier.
	directSourceCap = 5000
	directTotalCap  = 100000

	// Per-read character budget for the tool-mediated tier.
	toolReadCap = 8000

	// Total transcript budget for the tool loop. A runaway conversation is
	// cut off and falls through to the minimal tier.
	transcriptByteCap = 256 * 1024

	readSourceTool = "read_source_data"
)

const systemPrompt = `You are a research analyst. You write factual, structured narrative profiles of professionals based solely on the provided source material. Cover role, organization, tenure, and anything notable about their public footprint. Do not invent facts that the sources do not support.`

// JobPayload is the profile stage's queue payload.
type JobPayload struct {
	Email string `json:"email"`
}

// Stage generates profiles.
type Stage struct {
	store       store.Store
	notifier    notify.Notifier
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New creates a profile stage.
func New(s store.Store, n notify.Notifier, client anthropic.Client, modelID string, maxTokens int64, temperature float64) *Stage {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Stage{
		store:       s,
		notifier:    n,
		client:      client,
		model:       modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Handle is the queue handler for profile jobs.
func (st *Stage) Handle(ctx context.Context, job queue.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return eris.Wrap(err, "profile: decode payload")
	}
	return st.Run(ctx, payload.Email)
}

// Run generates and persists a profile for the target. Precondition failures
// are terminal for the job and leave the target untouched.
func (st *Stage) Run(ctx context.Context, email string) error {
	target, err := st.store.GetTarget(ctx, email)
	if err != nil {
		return err
	}
	if target == nil {
		return eris.Errorf("profile: target not found: %s", email)
	}
	if target.Status != model.TargetStatusEnriched {
		return eris.Errorf("profile: target %s is %s, want %s", email, target.Status, model.TargetStatusEnriched)
	}

	sources, err := st.store.MinedSources(ctx, email)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return eris.Errorf("profile: no mined sources for %s", email)
	}

	text := st.synthesize(ctx, target, sources)

	if err := st.store.UpdateTargetProfile(ctx, email, text); err != nil {
		return err
	}
	if err := st.store.UpdateTargetStatus(ctx, email, model.TargetStatusComplete); err != nil {
		return err
	}

	st.notifier.Emit(notify.EventProfileGenerated, map[string]any{
		"email":   email,
		"profile": text,
	})
	st.notifier.Emit(notify.EventTargetStatusUpdated, map[string]any{
		"email":   email,
		"status":  string(model.TargetStatusComplete),
		"message": "Profile generated",
		"domain":  target.DomainName,
	})
	return nil
}

// synthesize walks the three tiers and always returns some profile text.
func (st *Stage) synthesize(ctx context.Context, target *model.Target, sources []model.SourceData) string {
	log := zap.L().With(zap.String("email", target.Email), zap.Int("sources", len(sources)))

	text, err := st.directSynthesis(ctx, target, sources)
	if err == nil {
		log.Info("profile synthesized directly")
		return text
	}
	log.Warn("direct synthesis failed, starting tool loop", zap.Error(err))

	text, err = st.toolSynthesis(ctx, target, sources)
	if err == nil {
		log.Info("profile synthesized via tool loop")
		return text
	}
	log.Warn("tool synthesis failed, trying minimal request", zap.Error(err))

	text, err = st.minimalSynthesis(ctx, target, sources)
	if err == nil {
		log.Info("profile synthesized from url list")
		return text
	}
	log.Error("all synthesis tiers failed, using placeholder", zap.Error(err))

	return placeholderProfile(target, sources)
}

// directSynthesis embeds every source inline in one request.
func (st *Stage) directSynthesis(ctx context.Context, target *model.Target, sources []model.SourceData) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a profile of %s (%s).\n\nSource material:\n", target.Name, target.Email)

	for i, src := range sources {
		section := fmt.Sprintf("\n--- Source %d: %s ---\n%s\n", i+1, src.URL, truncate(sourceContent(src), directSourceCap))
		if b.Len()+len(section) > directTotalCap {
			break
		}
		b.WriteString(section)
	}

	resp, err := st.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       st.model,
		MaxTokens:   st.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{anthropic.TextMessage("user", b.String())},
		Temperature: &st.temperature,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(st.model, "profile_direct")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("profile: empty direct response")
	}
	return text, nil
}

// toolSynthesis runs the bounded conversational loop in which the model pulls
// one source at a time through the read_source_data tool.
func (st *Stage) toolSynthesis(ctx context.Context, target *model.Target, sources []model.SourceData) (string, error) {
	n := len(sources)
	maxIterations := 2*n + 3

	var urls []string
	for _, src := range sources {
		urls = append(urls, src.URL)
	}

	opening := fmt.Sprintf(
		"Write a profile of %s (%s). There are %d sources:\n%s\nUse the %s tool to read each source by index (0-based), then write the profile as plain text.",
		target.Name, target.Email, n, "- "+strings.Join(urls, "\n- ")+"\n", readSourceTool)

	messages := []anthropic.Message{anthropic.TextMessage("user", opening)}
	transcriptBytes := len(opening)
	read := make(map[int]bool)
	nudged := false

	tool := anthropic.Tool{
		Name:        readSourceTool,
		Description: "Read the scraped content of one source document by its 0-based index.",
		Properties: map[string]any{
			"index": map[string]any{
				"type":        "integer",
				"description": "0-based index of the source to read",
			},
		},
		Required: []string{"index"},
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := st.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       st.model,
			MaxTokens:   st.maxTokens,
			System:      systemPrompt,
			Messages:    messages,
			Tools:       []anthropic.Tool{tool},
			Temperature: &st.temperature,
		})
		if err != nil {
			return "", eris.Wrap(err, "profile: tool loop request")
		}
		resp.Usage.LogCost(st.model, "profile_tool_loop")

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text != "" {
				return text, nil
			}
			// Neither text nor tool calls: early abort.
			return "", eris.New("profile: model returned neither text nor tool calls")
		}

		messages = append(messages, resp.AsMessage())
		for _, call := range calls {
			result, isError := st.answerRead(call, sources, read)
			messages = append(messages, anthropic.ToolResultMessage(call.ToolID, result, isError))
			transcriptBytes += len(result)
		}

		if !nudged && len(read) == n && iteration+1 > n {
			messages = append(messages, anthropic.TextMessage("user",
				"You have read every source. Finalize now: reply with the complete profile as plain text and make no further tool calls."))
			nudged = true
		}

		if transcriptBytes > transcriptByteCap {
			return "", eris.Errorf("profile: tool loop transcript exceeded %d bytes", transcriptByteCap)
		}
	}

	return "", eris.Errorf("profile: tool loop exhausted after %d exchanges", maxIterations)
}

// answerRead serves one read_source_data invocation.
func (st *Stage) answerRead(call anthropic.ContentBlock, sources []model.SourceData, read map[int]bool) (string, bool) {
	var input struct {
		Index int `json:"index"`
	}
	if err := json.Unmarshal(call.ToolInput, &input); err != nil {
		return "invalid input: expected {\"index\": <integer>}", true
	}
	if input.Index < 0 || input.Index >= len(sources) {
		return fmt.Sprintf("index %d out of range: valid indices are 0 to %d", input.Index, len(sources)-1), true
	}

	read[input.Index] = true
	src := sources[input.Index]
	return fmt.Sprintf("Source %d (%s):\n%s", input.Index, src.URL, truncate(sourceContent(src), toolReadCap)), false
}

// minimalSynthesis asks for a brief profile given only the URL list.
func (st *Stage) minimalSynthesis(ctx context.Context, target *model.Target, sources []model.SourceData) (string, error) {
	var urls []string
	for _, src := range sources {
		urls = append(urls, src.URL)
	}

	prompt := fmt.Sprintf(
		"Write a brief profile of %s (%s) based on what these source URLs suggest about them:\n- %s",
		target.Name, target.Email, strings.Join(urls, "\n- "))

	resp, err := st.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       st.model,
		MaxTokens:   st.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{anthropic.TextMessage("user", prompt)},
		Temperature: &st.temperature,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(st.model, "profile_minimal")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("profile: empty minimal response")
	}
	return text, nil
}

// placeholderProfile is the last resort when every tier failed.
func placeholderProfile(target *model.Target, sources []model.SourceData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile synthesis could not be completed for %s (%s).\n\nKnown sources:\n", target.Name, target.Email)
	for _, src := range sources {
		fmt.Fprintf(&b, "- %s\n", src.URL)
	}
	return b.String()
}

// sourceContent extracts the scraped body from a mined source row, falling
// back to the raw stored data when it is not the expected JSON envelope.
func sourceContent(src model.SourceData) string {
	if src.Data == nil {
		return ""
	}
	var payload model.ScrapedPayload
	if err := json.Unmarshal([]byte(*src.Data), &payload); err != nil || payload.Content == "" {
		return *src.Data
	}
	return payload.Content
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
