// Package scrape fetches discovered source URLs and persists their payloads.
package scrape

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/recon-pipeline/internal/aggregate"
	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/store"
)

// JobPayload is the scrape stage's queue payload.
type JobPayload struct {
	SourceID     int64  `json:"sourceId"`
	SourceURL    string `json:"sourceUrl"`
	SourceDomain string `json:"sourceDomain"`
}

// Options configures the fetcher.
type Options struct {
	Timeout       time.Duration
	MaxBodyBytes  int
	UserAgent     string
	RatePerSecond float64
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 10000
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 5
	}
}

// Stage fetches a source URL, stores the outcome on the source row, and lets
// the aggregator advance any targets the settlement unblocked.
type Stage struct {
	store      store.Store
	notifier   notify.Notifier
	aggregator *aggregate.Aggregator
	client     *http.Client
	limiter    *rate.Limiter
	opts       Options
}

// New creates a scrape stage.
func New(s store.Store, n notify.Notifier, agg *aggregate.Aggregator, opts Options) *Stage {
	opts.defaults()
	return &Stage{
		store:      s,
		notifier:   n,
		aggregator: agg,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		opts:       opts,
	}
}

// Handle is the queue handler for scrape jobs.
func (st *Stage) Handle(ctx context.Context, job queue.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return eris.Wrap(err, "scrape: decode payload")
	}
	return st.Run(ctx, payload.SourceID, payload.SourceURL)
}

// Run scrapes one source. Both outcomes settle the source, so the aggregator
// fan-out happens on failure too.
func (st *Stage) Run(ctx context.Context, sourceID int64, url string) error {
	if err := st.store.MarkSourceProcessing(ctx, sourceID, "Scraping source"); err != nil {
		return err
	}
	st.emitSourceUpdate(sourceID, model.SourceStatusProcessing, "Scraping source")

	payload, fetchErr := st.fetch(ctx, url)

	var status model.SourceStatus
	var message string
	if fetchErr != nil {
		status = model.SourceStatusFailed
		message = fetchErr.Error()
		if err := st.store.MarkSourceFailed(ctx, sourceID, message); err != nil {
			return err
		}
		zap.L().Warn("scrape failed",
			zap.Int64("source_id", sourceID),
			zap.String("url", url),
			zap.Error(fetchErr))
	} else {
		data, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "scrape: marshal payload")
		}
		status = model.SourceStatusMined
		message = "Scraped successfully"
		if err := st.store.MarkSourceMined(ctx, sourceID, string(data), message); err != nil {
			return err
		}
		zap.L().Info("scrape mined",
			zap.Int64("source_id", sourceID),
			zap.String("url", url),
			zap.Int("status_code", payload.StatusCode),
			zap.Int("bytes", len(payload.Content)))
	}

	if err := st.aggregator.OnSourceSettled(ctx, sourceID); err != nil {
		return err
	}

	st.emitSourceUpdate(sourceID, status, message)
	st.emitPerTarget(ctx, sourceID, status)
	return nil
}

func (st *Stage) fetch(ctx context.Context, url string) (*model.ScrapedPayload, error) {
	if err := st.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scrape: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: build request %s", url)
	}
	req.Header.Set("User-Agent", st.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := st.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: fetch %s", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(st.opts.MaxBodyBytes)))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read body %s", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, eris.Errorf("scrape: unexpected status %d for %s", resp.StatusCode, url)
	}

	return &model.ScrapedPayload{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Content:     string(body),
		ScrapedAt:   time.Now().UTC(),
	}, nil
}

func (st *Stage) emitSourceUpdate(sourceID int64, status model.SourceStatus, message string) {
	st.notifier.Emit(notify.EventSourceUpdate, map[string]any{
		"sourceId": sourceID,
		"status":   string(status),
		"message":  message,
	})
}

func (st *Stage) emitPerTarget(ctx context.Context, sourceID int64, status model.SourceStatus) {
	emails, err := st.store.TargetEmailsForSource(ctx, sourceID)
	if err != nil {
		zap.L().Error("targets for source lookup failed", zap.Int64("source_id", sourceID), zap.Error(err))
		return
	}

	event := notify.EventSourceMined
	if status == model.SourceStatusFailed {
		event = notify.EventSourceFailed
	}
	for _, email := range emails {
		st.notifier.Emit(event, map[string]any{
			"sourceId":    sourceID,
			"targetEmail": email,
			"status":      string(status),
		})
	}
}
