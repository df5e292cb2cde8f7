package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/model"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/recon"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/autodiscover"
)

type stubRecon struct{}

func (stubRecon) Run(ctx context.Context, domain string) (*recon.Summary, error) {
	return &recon.Summary{}, nil
}

type stubFederator struct {
	info *autodiscover.FederationInfo
	err  error
}

func (f *stubFederator) GetFederationInformation(ctx context.Context, domain string) (*autodiscover.FederationInfo, error) {
	return f.info, f.err
}

type testEnv struct {
	server    *httptest.Server
	store     store.Store
	broker    *queue.Broker
	hub       *notify.Hub
	federator *stubFederator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	s, err := store.NewSQLite(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	broker, err := queue.NewBroker(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })
	require.NoError(t, broker.Migrate(context.Background()))

	hub := notify.NewHub()
	federator := &stubFederator{}
	srv := httptest.NewServer(New(s, broker, hub, stubRecon{}, federator).Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: s, broker: broker, hub: hub, federator: federator}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	} else {
		req, err = http.NewRequest(method, e.server.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddDomainQueuesDiscovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.do(t, http.MethodPost, "/api/domains", `{"domain":"acme.example"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	d, err := env.store.GetDomain(ctx, "acme.example")
	require.NoError(t, err)
	require.NotNil(t, d)

	jobs, err := env.broker.PollBatch(ctx, queue.StageDiscovery, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, string(jobs[0].Payload), "acme.example")
}

func TestAddDomainRequiresDomain(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/domains", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDomainNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/domains/nope.example", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelatedDomainsQueuesDiscoveryForEach(t *testing.T) {
	env := newTestEnv(t)
	env.federator.info = &autodiscover.FederationInfo{
		ApplicationURI: "outlook.com",
		Domains:        []string{"acme.example", "acme-sub.example"},
	}

	resp := env.do(t, http.MethodPost, "/api/domains/acme.example/related", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	jobs, err := env.broker.PollBatch(context.Background(), queue.StageDiscovery, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestScrapeSourcesQueuesUnmined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, env.store.UpsertTarget(ctx, model.Target{Email: "jo@acme.example", Name: "Jo", DomainName: "acme.example"}))
	id, err := env.store.InsertSource(ctx, model.SourceData{URL: "https://acme.example/a", DiscoveryMethod: "hunter"})
	require.NoError(t, err)
	require.NoError(t, env.store.LinkTargetSource(ctx, "jo@acme.example", id))

	minedID, err := env.store.InsertSource(ctx, model.SourceData{URL: "https://acme.example/b", DiscoveryMethod: "hunter"})
	require.NoError(t, err)
	require.NoError(t, env.store.MarkSourceMined(ctx, minedID, "{}", ""))

	resp := env.do(t, http.MethodPost, "/api/scrape-sources", `{}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, body["queued"])

	jobs, err := env.broker.PollBatch(ctx, queue.StageScrape, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, string(jobs[0].Payload), "https://acme.example/a")
}

func TestGenerateProfilesQueuesOnlyEnriched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, env.store.UpsertTarget(ctx, model.Target{Email: "jo@acme.example", Name: "Jo", DomainName: "acme.example"}))
	require.NoError(t, env.store.UpsertTarget(ctx, model.Target{Email: "al@acme.example", Name: "Al", DomainName: "acme.example"}))
	require.NoError(t, env.store.UpdateTargetStatus(ctx, "jo@acme.example", model.TargetStatusEnriched))

	resp := env.do(t, http.MethodPost, "/api/domains/acme.example/generate-profiles", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, body["queued"])
}

func TestGeneratePretextRequiresPromptID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/targets/jo@acme.example/generate-pretext", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReviewPretext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, env.store.UpsertTarget(ctx, model.Target{Email: "jo@acme.example", Name: "Jo", DomainName: "acme.example"}))
	promptID, err := env.store.InsertPrompt(ctx, model.Prompt{Name: "p", Template: "t"})
	require.NoError(t, err)
	id, err := env.store.InsertPretext(ctx, model.Pretext{TargetEmail: "jo@acme.example", PromptID: promptID, PromptText: "x"})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPatch, "/api/pretexts/"+itoa(id), `{"status":"approved"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	pretexts, err := env.store.ListPretextsForTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Equal(t, model.PretextStatusApproved, pretexts[0].Status)

	// draft is not a reviewer decision
	resp = env.do(t, http.MethodPatch, "/api/pretexts/"+itoa(id), `{"status":"draft"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.EnsureDomain(ctx, "acme.example"))
	require.NoError(t, env.store.UpsertTarget(ctx, model.Target{Email: "jo@acme.example", Name: "Jo", DomainName: "acme.example"}))

	resp := env.do(t, http.MethodDelete, "/api/targets/jo@acme.example", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	target, err := env.store.GetTarget(ctx, "jo@acme.example")
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestAddAndListPrompts(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/prompts", `{"name":"invoice","template":"Hi {{target_profile}}"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/prompts", "")
	prompts := decodeBody[[]model.Prompt](t, resp)
	require.Len(t, prompts, 1)
	assert.Equal(t, "invoice", prompts[0].Name)
}

func TestEventsStreamsHubEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before emitting.
	time.Sleep(100 * time.Millisecond)
	env.hub.Emit(notify.EventReconUpdate, map[string]string{"message": "hello"})

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(3 * time.Second)
	lines := make(chan string, 10)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	var sawEvent, sawData bool
	for !(sawEvent && sawData) {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "event: reconUpdate") {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data:") && strings.Contains(line, "hello") {
				sawData = true
			}
		case <-deadline:
			t.Fatal("did not receive event in time")
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
