package discovery

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-pipeline/internal/store"
)

type fakeResolver struct {
	mx     []*net.MX
	mxErr  error
	txt    map[string][]string
	txtErr map[string]error
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	return f.mx, f.mxErr
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err := f.txtErr[name]; err != nil {
		return nil, err
	}
	return f.txt[name], nil
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

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRunResolvesAllRecordFamilies(t *testing.T) {
	s := newTestStore(t)
	notifier := &eventCapture{}

	resolver := &fakeResolver{
		mx: []*net.MX{
			{Host: "backup.acme.example.", Pref: 20},
			{Host: "mail.acme.example.", Pref: 10},
		},
		txt: map[string][]string{
			"acme.example":        {"google-site-verification=abc", "v=spf1 include:_spf.acme.example ~all"},
			"_dmarc.acme.example": {"v=DMARC1; p=reject"},
		},
	}

	stage := NewWithResolver(s, notifier, resolver, 10*time.Second)
	require.NoError(t, stage.Run(context.Background(), "acme.example"))

	d, err := s.GetDomain(context.Background(), "acme.example")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NotNil(t, d.MX)
	assert.Equal(t, "10 mail.acme.example, 20 backup.acme.example", *d.MX)
	require.NotNil(t, d.SPF)
	assert.Equal(t, "v=spf1 include:_spf.acme.example ~all", *d.SPF)
	require.NotNil(t, d.DMARC)
	assert.Equal(t, "v=DMARC1; p=reject", *d.DMARC)
	assert.Contains(t, notifier.events, "domainUpdated")
}

func TestRunIsolatesLookupFailures(t *testing.T) {
	s := newTestStore(t)
	notifier := &eventCapture{}

	resolver := &fakeResolver{
		mxErr: &net.DNSError{Err: "no such host", IsNotFound: true},
		txt: map[string][]string{
			"acme.example": {"v=spf1 -all"},
		},
		txtErr: map[string]error{
			"_dmarc.acme.example": &net.DNSError{Err: "no such host", IsNotFound: true},
		},
	}

	stage := NewWithResolver(s, notifier, resolver, 10*time.Second)
	require.NoError(t, stage.Run(context.Background(), "acme.example"))

	d, err := s.GetDomain(context.Background(), "acme.example")
	require.NoError(t, err)
	assert.Nil(t, d.MX)
	require.NotNil(t, d.SPF)
	assert.Nil(t, d.DMARC)
}

func TestRunRejectsEmptyDomain(t *testing.T) {
	s := newTestStore(t)
	stage := NewWithResolver(s, &eventCapture{}, &fakeResolver{}, time.Second)
	require.Error(t, stage.Run(context.Background(), ""))
}
