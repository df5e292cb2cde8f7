package store

import (
	"context"

	"github.com/sells-group/recon-pipeline/internal/model"
)

// Store defines the persistence interface shared by every pipeline stage.
//
// Lookups for single entities return (nil, nil) when the row does not exist;
// callers that treat absence as a precondition failure decide that themselves.
type Store interface {
	// Domains
	EnsureDomain(ctx context.Context, name string) error
	GetDomain(ctx context.Context, name string) (*model.Domain, error)
	ListDomains(ctx context.Context) ([]model.Domain, error)
	UpdateDomainRecords(ctx context.Context, name string, records model.DNSRecords) error
	UpdateDomainEmailFormat(ctx context.Context, name, format string) error
	EnsureSourceDomain(ctx context.Context, name string) error

	// Targets
	UpsertTarget(ctx context.Context, t model.Target) error
	GetTarget(ctx context.Context, email string) (*model.Target, error)
	ListTargets(ctx context.Context, domain string) ([]model.Target, error)
	UpdateTargetStatus(ctx context.Context, email string, status model.TargetStatus) error
	UpdateTargetProfile(ctx context.Context, email, profile string) error
	DeleteTarget(ctx context.Context, email string) error

	// Sources
	InsertSource(ctx context.Context, s model.SourceData) (int64, error)
	GetSource(ctx context.Context, id int64) (*model.SourceData, error)
	ListSources(ctx context.Context) ([]model.SourceData, error)
	MarkSourceProcessing(ctx context.Context, id int64, message string) error
	MarkSourceMined(ctx context.Context, id int64, data, message string) error
	MarkSourceFailed(ctx context.Context, id int64, message string) error

	// Target-source map and aggregation queries
	LinkTargetSource(ctx context.Context, email string, sourceID int64) error
	TargetEmailsForSource(ctx context.Context, sourceID int64) ([]string, error)
	CountPendingSources(ctx context.Context, email string) (int, error)
	MinedSources(ctx context.Context, email string) ([]model.SourceData, error)
	UnminedSourcesForTargets(ctx context.Context, emails []string) ([]model.SourceData, error)

	// Prompts
	InsertPrompt(ctx context.Context, p model.Prompt) (int64, error)
	GetPrompt(ctx context.Context, id int64) (*model.Prompt, error)
	GetPromptByName(ctx context.Context, name string) (*model.Prompt, error)
	ListPrompts(ctx context.Context) ([]model.Prompt, error)

	// Pretexts
	InsertPretext(ctx context.Context, p model.Pretext) (int64, error)
	UpdatePretextStatus(ctx context.Context, id int64, status model.PretextStatus) error
	ListPretextsForTarget(ctx context.Context, email string) ([]model.Pretext, error)
	ListPretextsForDomain(ctx context.Context, domain string) ([]model.Pretext, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
