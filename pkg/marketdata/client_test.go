package marketdata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient answers every request with a fixed response and records the URLs.
type mockHTTPClient struct {
	status int
	body   string
	urls   []string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.urls = append(m.urls, req.URL.String())
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(strings.NewReader(m.body)),
		Header:     make(http.Header),
	}, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol(" $aapl "))
	assert.Equal(t, "", NormalizeSymbol("  "))
}

func TestGetRejectsNonSuccessStatus(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusTooManyRequests}
	b := newBase("http://example.test", []Option{WithHTTPClient(client)})
	_, err := b.get(context.Background(), "http://example.test/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)
}

func TestGetLimitsResponseSize(t *testing.T) {
	client := &mockHTTPClient{status: http.StatusOK, body: strings.Repeat("a", maxResponseSize+10)}
	b := newBase("http://example.test", []Option{WithHTTPClient(client)})
	body, err := b.get(context.Background(), "http://example.test/x", nil)
	require.NoError(t, err)
	assert.Len(t, body, maxResponseSize)
}

func TestGetHonoursCanceledContextWithLimiter(t *testing.T) {
	b := newBase("http://example.test", []Option{
		WithHTTPClient(&mockHTTPClient{status: http.StatusOK}),
		WithRateLimit(1, time.Hour),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.get(ctx, "http://example.test/x", nil)
	assert.Error(t, err)
}

func TestWithTimeoutAppliesToDefaultClient(t *testing.T) {
	b := newBase("http://example.test", []Option{WithTimeout(3 * time.Second)})
	hc, ok := b.client.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, hc.Timeout)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}
