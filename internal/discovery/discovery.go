// Package discovery resolves a domain's mail-posture DNS records.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/store"
)

// JobPayload is the discovery stage's queue payload.
type JobPayload struct {
	Domain string `json:"domain"`
}

// Resolver is the subset of net.Resolver the stage uses.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Stage resolves MX, SPF and DMARC records for a domain and upserts the
// result. A failed lookup for one record family yields a nil field, never a
// stage failure.
type Stage struct {
	store    store.Store
	notifier notify.Notifier
	resolver Resolver
	timeout  time.Duration
}

// New creates a discovery stage with the default resolver.
func New(s store.Store, n notify.Notifier, timeout time.Duration) *Stage {
	return NewWithResolver(s, n, net.DefaultResolver, timeout)
}

// NewWithResolver creates a discovery stage with a custom resolver.
func NewWithResolver(s store.Store, n notify.Notifier, r Resolver, timeout time.Duration) *Stage {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Stage{store: s, notifier: n, resolver: r, timeout: timeout}
}

// Handle is the queue handler for discovery jobs.
func (st *Stage) Handle(ctx context.Context, job queue.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return eris.Wrap(err, "discovery: decode payload")
	}
	return st.Run(ctx, payload.Domain)
}

// Run resolves the domain's records and persists whatever subset succeeded.
func (st *Stage) Run(ctx context.Context, domain string) error {
	if domain == "" {
		return eris.New("discovery: empty domain")
	}

	records := st.resolve(ctx, domain)

	if err := st.store.UpdateDomainRecords(ctx, domain, records); err != nil {
		return eris.Wrapf(err, "discovery: persist records %s", domain)
	}

	zap.L().Info("domain records resolved",
		zap.String("domain", domain),
		zap.Bool("mx", records.MX != nil),
		zap.Bool("spf", records.SPF != nil),
		zap.Bool("dmarc", records.DMARC != nil))
	st.notifier.Emit(notify.EventDomainUpdated, map[string]any{
		"domain": domain,
		"dnsRecords": map[string]*string{
			"mx":    records.MX,
			"spf":   records.SPF,
			"dmarc": records.DMARC,
		},
	})
	return nil
}

// resolve runs the three lookups concurrently. Each failure is isolated to
// its own field.
func (st *Stage) resolve(ctx context.Context, domain string) model.DNSRecords {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	var records model.DNSRecords
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mx, err := st.lookupMX(gctx, domain)
		if err != nil {
			zap.L().Debug("mx lookup failed", zap.String("domain", domain), zap.Error(err))
			return nil
		}
		records.MX = &mx
		return nil
	})
	g.Go(func() error {
		spf, err := st.lookupSPF(gctx, domain)
		if err != nil {
			zap.L().Debug("spf lookup failed", zap.String("domain", domain), zap.Error(err))
			return nil
		}
		records.SPF = &spf
		return nil
	})
	g.Go(func() error {
		dmarc, err := st.lookupDMARC(gctx, domain)
		if err != nil {
			zap.L().Debug("dmarc lookup failed", zap.String("domain", domain), zap.Error(err))
			return nil
		}
		records.DMARC = &dmarc
		return nil
	})

	g.Wait() //nolint:errcheck // goroutines always return nil
	return records
}

func (st *Stage) lookupMX(ctx context.Context, domain string) (string, error) {
	mxs, err := st.resolver.LookupMX(ctx, domain)
	if err != nil {
		return "", eris.Wrapf(err, "lookup mx %s", domain)
	}
	if len(mxs) == 0 {
		return "", eris.Errorf("no mx records for %s", domain)
	}

	sort.Slice(mxs, func(i, j int) bool { return mxs[i].Pref < mxs[j].Pref })
	parts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		parts = append(parts, fmt.Sprintf("%d %s", mx.Pref, strings.TrimSuffix(mx.Host, ".")))
	}
	return strings.Join(parts, ", "), nil
}

func (st *Stage) lookupSPF(ctx context.Context, domain string) (string, error) {
	txts, err := st.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return "", eris.Wrapf(err, "lookup txt %s", domain)
	}
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=spf1") {
			return txt, nil
		}
	}
	return "", eris.Errorf("no spf record for %s", domain)
}

func (st *Stage) lookupDMARC(ctx context.Context, domain string) (string, error) {
	txts, err := st.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return "", eris.Wrapf(err, "lookup dmarc %s", domain)
	}
	for _, txt := range txts {
		if strings.HasPrefix(txt, "v=DMARC1") {
			return txt, nil
		}
	}
	if len(txts) > 0 {
		return txts[0], nil
	}
	return "", eris.Errorf("no dmarc record for %s", domain)
}
