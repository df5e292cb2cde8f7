// Package prompts loads pretext prompt templates from a YAML directory into
// the store.
package prompts

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/store"
)

// File is the on-disk shape of one prompt template.
type File struct {
	Name         string `yaml:"name"`
	Template     string `yaml:"template"`
	SystemPrompt string `yaml:"system_prompt"`
	Dos          string `yaml:"dos"`
	Donts        string `yaml:"donts"`
}

// Load reads every .yaml/.yml file in dir and inserts prompts that do not
// exist yet, keyed on name. Existing prompts are left as-is so database edits
// survive restarts. Returns the number of prompts inserted.
func Load(ctx context.Context, s store.Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("prompt library directory missing", zap.String("dir", dir))
			return 0, nil
		}
		return 0, eris.Wrapf(err, "prompts: read dir %s", dir)
	}

	inserted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		file, err := parseFile(path)
		if err != nil {
			return inserted, err
		}

		existing, err := s.GetPromptByName(ctx, file.Name)
		if err != nil {
			return inserted, err
		}
		if existing != nil {
			continue
		}

		if _, err := s.InsertPrompt(ctx, model.Prompt{
			Name:         file.Name,
			Template:     file.Template,
			SystemPrompt: file.SystemPrompt,
			Dos:          file.Dos,
			Donts:        file.Donts,
		}); err != nil {
			return inserted, err
		}
		inserted++
		zap.L().Info("prompt loaded", zap.String("name", file.Name), zap.String("file", entry.Name()))
	}
	return inserted, nil
}

func parseFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompts: read %s", path)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrapf(err, "prompts: parse %s", path)
	}
	if file.Name == "" {
		return nil, eris.Errorf("prompts: %s has no name", path)
	}
	if file.Template == "" {
		return nil, eris.Errorf("prompts: %s has no template", path)
	}
	return &file, nil
}
