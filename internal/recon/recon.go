// Package recon turns email-discovery results into targets and source rows.
package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/hunter"
)

// DiscoveryMethodHunter marks rows produced by this intake.
const DiscoveryMethodHunter = "hunter"

// Searcher is the email-discovery call the intake depends on.
type Searcher interface {
	DomainSearch(ctx context.Context, domain string, limit int) (*hunter.DomainSearchResult, error)
}

// Intake processes discovery results for a domain into the store.
type Intake struct {
	store    store.Store
	notifier notify.Notifier
	searcher Searcher
	limit    int
}

// New creates an Intake.
func New(s store.Store, n notify.Notifier, searcher Searcher, limit int) *Intake {
	if limit <= 0 {
		limit = 20
	}
	return &Intake{store: s, notifier: n, searcher: searcher, limit: limit}
}

// Summary reports what one intake run produced.
type Summary struct {
	Targets int
	Sources int
}

// Run searches the domain and persists targets, sources and their links. All
// inserts are idempotent, so re-running a domain is safe.
func (in *Intake) Run(ctx context.Context, domain string) (*Summary, error) {
	if err := in.store.EnsureDomain(ctx, domain); err != nil {
		return nil, err
	}

	in.emit(fmt.Sprintf("Starting recon for %s", domain))

	result, err := in.searcher.DomainSearch(ctx, domain, in.limit)
	if err != nil {
		return nil, eris.Wrapf(err, "recon: domain search %s", domain)
	}

	if result.Pattern != "" {
		if err := in.store.UpdateDomainEmailFormat(ctx, domain, result.Pattern); err != nil {
			return nil, err
		}
	}

	summary := &Summary{}
	for _, email := range result.Emails {
		if err := in.processEmail(ctx, domain, email, summary); err != nil {
			return nil, err
		}
	}

	zap.L().Info("recon finished",
		zap.String("domain", domain),
		zap.Int("targets", summary.Targets),
		zap.Int("sources", summary.Sources))
	in.emit(fmt.Sprintf("Recon for %s finished: %d targets, %d sources", domain, summary.Targets, summary.Sources))
	return summary, nil
}

func (in *Intake) processEmail(ctx context.Context, domain string, email hunter.Email, summary *Summary) error {
	target := model.Target{
		Email:      email.Value,
		Name:       strings.TrimSpace(email.FirstName + " " + email.LastName),
		DomainName: domain,
	}
	if tenure := earliestExtraction(email.Sources); tenure != nil {
		target.TenureStart = tenure
	}

	if err := in.store.UpsertTarget(ctx, target); err != nil {
		return err
	}
	summary.Targets++
	in.emit(fmt.Sprintf("Found target %s", email.Value))

	for _, src := range email.Sources {
		url := sourceURL(src, email.LinkedIn)
		if url == "" {
			continue
		}

		if src.Domain != "" {
			if err := in.store.EnsureSourceDomain(ctx, src.Domain); err != nil {
				return err
			}
		}

		var srcDomain *string
		if src.Domain != "" {
			srcDomain = &src.Domain
		}
		id, err := in.store.InsertSource(ctx, model.SourceData{
			URL:             url,
			SourceDomain:    srcDomain,
			DiscoveryMethod: DiscoveryMethodHunter,
		})
		if err != nil {
			return err
		}
		if err := in.store.LinkTargetSource(ctx, email.Value, id); err != nil {
			return err
		}
		summary.Sources++
	}
	return nil
}

// sourceURL substitutes the target's profile URL for search-result URLs,
// which never scrape usefully.
func sourceURL(src hunter.Source, linkedin string) string {
	if linkedin != "" && strings.Contains(src.URI, "google.com/search") {
		return linkedin
	}
	return src.URI
}

// earliestExtraction picks the oldest extracted_on date as the tenure floor.
func earliestExtraction(sources []hunter.Source) *time.Time {
	var earliest *time.Time
	for _, src := range sources {
		if src.ExtractedOn == "" {
			continue
		}
		ts, err := time.Parse("2006-01-02", src.ExtractedOn)
		if err != nil {
			continue
		}
		if earliest == nil || ts.Before(*earliest) {
			earliest = &ts
		}
	}
	return earliest
}

func (in *Intake) emit(message string) {
	in.notifier.Emit(notify.EventReconUpdate, map[string]any{"message": message})
}
