package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RatePolicy is the inter-request delay for one process lifetime. It is
// resolved once at startup and never adapted within a run; the only runtime
// reaction to the target's displeasure is the ban abort.
type RatePolicy struct {
	Delay  time.Duration
	Source string // "robots" or "fallback"
}

// ResolveRatePolicy fetches the target's published crawl-delay directive and
// doubles it, compensating for having tripped a ban in the past. A missing
// directive, a failed fetch, or an unparseable file all fall back to the
// configured static delay.
func ResolveRatePolicy(ctx context.Context, client *http.Client, robotsURL, userAgent string, fallback time.Duration, log *logrus.Entry) RatePolicy {
	policyLog := log.WithField("robots_url", robotsURL)
	fallbackPolicy := RatePolicy{Delay: fallback, Source: "fallback"}

	if robotsURL == "" {
		policyLog.Infof("No robots URL configured, using fallback delay %s", fallback)
		return fallbackPolicy
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		policyLog.Warnf("Bad robots URL, using fallback delay %s: %v", fallback, err)
		return fallbackPolicy
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		policyLog.Warnf("Fetching robots.txt failed, using fallback delay %s: %v", fallback, err)
		return fallbackPolicy
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		policyLog.Warnf("robots.txt returned %d, using fallback delay %s", resp.StatusCode, fallback)
		return fallbackPolicy
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		policyLog.Warnf("Reading robots.txt failed, using fallback delay %s: %v", fallback, err)
		return fallbackPolicy
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		policyLog.Warnf("Parsing robots.txt failed, using fallback delay %s: %v", fallback, err)
		return fallbackPolicy
	}

	agentGroup := data.FindGroup(userAgent)
	if agentGroup == nil || agentGroup.CrawlDelay <= 0 {
		policyLog.Infof("No crawl-delay directive published, using fallback delay %s", fallback)
		return fallbackPolicy
	}

	delay := 2 * agentGroup.CrawlDelay
	policyLog.Infof("Advertised crawl-delay %s, operating at doubled delay %s", agentGroup.CrawlDelay, delay)
	return RatePolicy{Delay: delay, Source: "robots"}
}
