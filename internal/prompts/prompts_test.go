package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const samplePrompt = `name: it-helpdesk
template: |
  Profile: {{target_profile}}
  Write the email.
system_prompt: You draft plausible workplace email.
dos: Keep it short
donts: No urgency cliches
`

func TestLoadInsertsPrompts(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writePrompt(t, dir, "helpdesk.yaml", samplePrompt)
	writePrompt(t, dir, "notes.txt", "not a prompt")

	n, err := Load(context.Background(), s, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.GetPromptByName(context.Background(), "it-helpdesk")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Contains(t, p.Template, "{{target_profile}}")
	assert.Equal(t, "Keep it short", p.Dos)
}

func TestLoadSkipsExisting(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writePrompt(t, dir, "helpdesk.yaml", samplePrompt)

	ctx := context.Background()
	n, err := Load(ctx, s, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Load(ctx, s, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := s.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLoadMissingDirIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	n, err := Load(context.Background(), s, filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadRejectsNamelessPrompt(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	writePrompt(t, dir, "bad.yaml", "template: hi\n")

	_, err := Load(context.Background(), s, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}
