package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

const robotsURL = "https://example.org/robots.txt"

func mockedClient(t *testing.T) (*http.Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	return &http.Client{Transport: transport}, transport
}

func TestResolveRatePolicy_DoublesAdvertisedDelay(t *testing.T) {
	client, transport := mockedClient(t)
	transport.RegisterResponder(http.MethodGet, robotsURL,
		httpmock.NewStringResponder(200, "User-agent: *\nCrawl-delay: 3\n"))

	policy := ResolveRatePolicy(context.Background(), client, robotsURL, "gamedex-test/1.0", 10*time.Second, testLogger())

	assert.Equal(t, 6*time.Second, policy.Delay)
	assert.Equal(t, "robots", policy.Source)
}

func TestResolveRatePolicy_Fallbacks(t *testing.T) {
	fallback := 10 * time.Second

	tests := []struct {
		name  string
		setup func(transport *httpmock.MockTransport)
		url   string
	}{
		{
			name: "no crawl-delay directive",
			setup: func(tr *httpmock.MockTransport) {
				tr.RegisterResponder(http.MethodGet, robotsURL,
					httpmock.NewStringResponder(200, "User-agent: *\nDisallow: /private/\n"))
			},
			url: robotsURL,
		},
		{
			name: "robots.txt missing",
			setup: func(tr *httpmock.MockTransport) {
				tr.RegisterResponder(http.MethodGet, robotsURL,
					httpmock.NewStringResponder(404, "not found"))
			},
			url: robotsURL,
		},
		{
			name: "fetch fails",
			setup: func(tr *httpmock.MockTransport) {
				tr.RegisterResponder(http.MethodGet, robotsURL,
					httpmock.NewErrorResponder(errors.New("connection refused")))
			},
			url: robotsURL,
		},
		{
			name:  "no robots url configured",
			setup: func(tr *httpmock.MockTransport) {},
			url:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, transport := mockedClient(t)
			tt.setup(transport)

			policy := ResolveRatePolicy(context.Background(), client, tt.url, "gamedex-test/1.0", fallback, testLogger())

			assert.Equal(t, fallback, policy.Delay)
			assert.Equal(t, "fallback", policy.Source)
		})
	}
}
