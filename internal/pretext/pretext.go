// Package pretext generates reviewable message drafts for completed targets.
package pretext

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/anthropic"
)

const profilePlaceholder = "{{target_profile}}"

// JobPayload is the pretext stage's queue payload.
type JobPayload struct {
	Email    string `json:"email"`
	PromptID int64  `json:"promptId"`
}

// draft is the structured output the completion service must return.
type draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Link    string `json:"link"`
}

// Stage generates pretext drafts. It never mutates target status.
type Stage struct {
	store       store.Store
	notifier    notify.Notifier
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New creates a pretext stage.
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

// Handle is the queue handler for pretext jobs.
func (st *Stage) Handle(ctx context.Context, job queue.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return eris.Wrap(err, "pretext: decode payload")
	}
	_, err := st.Run(ctx, payload.Email, payload.PromptID)
	return err
}

// Run generates one draft for the target with the given prompt and returns
// the new pretext id.
func (st *Stage) Run(ctx context.Context, email string, promptID int64) (int64, error) {
	target, err := st.store.GetTarget(ctx, email)
	if err != nil {
		return 0, err
	}
	if target == nil {
		return 0, eris.Errorf("pretext: target not found: %s", email)
	}
	if target.Status != model.TargetStatusComplete {
		return 0, eris.Errorf("pretext: target %s is %s, want %s", email, target.Status, model.TargetStatusComplete)
	}

	prompt, err := st.store.GetPrompt(ctx, promptID)
	if err != nil {
		return 0, err
	}
	if prompt == nil {
		return 0, eris.Errorf("pretext: prompt not found: %d", promptID)
	}

	profile := ""
	if target.Profile != nil {
		profile = *target.Profile
	}
	promptText := strings.ReplaceAll(prompt.Template, profilePlaceholder, profile)

	resp, err := st.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       st.model,
		MaxTokens:   st.maxTokens,
		System:      composeSystem(prompt),
		Messages:    []anthropic.Message{anthropic.TextMessage("user", promptText)},
		Temperature: &st.temperature,
	})
	if err != nil {
		return 0, eris.Wrapf(err, "pretext: completion for %s", email)
	}
	resp.Usage.LogCost(st.model, "pretext")

	d, err := parseDraft(resp.Text())
	if err != nil {
		return 0, err
	}

	id, err := st.store.InsertPretext(ctx, model.Pretext{
		TargetEmail: email,
		PromptID:    promptID,
		PromptText:  promptText,
		Subject:     d.Subject,
		Body:        d.Body,
		Link:        d.Link,
		Status:      model.PretextStatusDraft,
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("pretext generated",
		zap.String("email", email),
		zap.Int64("pretext_id", id),
		zap.Int64("prompt_id", promptID))
	st.notifier.Emit(notify.EventPretextGenerated, map[string]any{
		"email":     email,
		"pretextId": id,
		"subject":   d.Subject,
	})
	return id, nil
}

// composeSystem builds the system instruction from the prompt's system text,
// its do/don't constraints, and the JSON-only requirement.
func composeSystem(prompt *model.Prompt) string {
	var b strings.Builder
	if prompt.SystemPrompt != "" {
		b.WriteString(prompt.SystemPrompt)
		b.WriteString("\n\n")
	}
	if prompt.Dos != "" {
		b.WriteString("DO:\n")
		b.WriteString(prompt.Dos)
		b.WriteString("\n\n")
	}
	if prompt.Donts != "" {
		b.WriteString("DON'T:\n")
		b.WriteString(prompt.Donts)
		b.WriteString("\n\n")
	}
	b.WriteString(`Respond with a single JSON object only, no prose before or after: {"subject": "...", "body": "...", "link": "..."}`)
	return b.String()
}

// parseDraft decodes the completion output, recovering from surrounding prose
// by extracting the first-{ to last-} substring, and from raw line breaks
// inside string values by escaping them on a second attempt.
func parseDraft(raw string) (*draft, error) {
	var d draft
	if err := json.Unmarshal([]byte(raw), &d); err == nil {
		return &d, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, eris.Errorf("pretext: no JSON object in response: %.80q", raw)
	}
	candidate := raw[start : end+1]

	if err := json.Unmarshal([]byte(candidate), &d); err == nil {
		return &d, nil
	}

	normalized := strings.NewReplacer("\r\n", "\\n", "\n", "\\n", "\r", "\\n").Replace(candidate)
	if err := json.Unmarshal([]byte(normalized), &d); err != nil {
		return nil, eris.Wrap(err, "pretext: parse response")
	}
	return &d, nil
}
