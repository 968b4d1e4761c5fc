package jobs

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opcron/opcron/internal/mail"
)

const defaultProbeTimeout = 10 * time.Second

// MonitorSockets probes a set of HTTP endpoints built from host and URL
// template kwargs, and mails an HTML report of the failures.
//
// Required kwargs:
//
//	hosts          []string  host names substituted into each template
//	url_templates  []string  URL templates containing a {host} placeholder
//	emails         []string  recipients for the failure report
//
// Optional kwargs:
//
//	timeout_seconds  number  per-request timeout, default 10
type MonitorSockets struct {
	sender *mail.Sender
	logger *zap.Logger
}

func (m *MonitorSockets) Doc() string {
	return "Probes every url_template for every host and mails a failure " +
		"report to emails. Required kwargs: hosts ([]string), " +
		"url_templates ([]string with {host} placeholder), emails ([]string). " +
		"Optional: timeout_seconds (number, default 10)."
}

type probeResult struct {
	url    string
	status int
	err    error
}

func (m *MonitorSockets) Run(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
	if err := requireKwargs(kwargs, "hosts", "url_templates", "emails"); err != nil {
		return nil, err
	}
	hosts := stringSlice(kwargs["hosts"])
	templates := stringSlice(kwargs["url_templates"])
	emails := stringSlice(kwargs["emails"])
	if len(hosts) == 0 || len(templates) == 0 || len(emails) == 0 {
		return nil, fmt.Errorf("invalid job settings, hosts, url_templates and emails must be non-empty lists")
	}

	timeout := defaultProbeTimeout
	if secs, ok := kwargs["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	urls := make([]string, 0, len(hosts)*len(templates))
	for _, host := range hosts {
		for _, tmpl := range templates {
			urls = append(urls, strings.ReplaceAll(tmpl, "{host}", host))
		}
	}

	results := m.probeAll(ctx, urls, timeout)

	var failures []probeResult
	for _, res := range results {
		if res.err != nil || res.status >= http.StatusBadRequest {
			failures = append(failures, res)
		}
	}

	if len(failures) > 0 {
		subject := fmt.Sprintf("Socket monitor: %d of %d checks failed", len(failures), len(results))
		if err := m.sender.SendHTML(subject, failureReport(failures), emails); err != nil {
			m.logger.Error("failed to send monitor report", zap.Error(err))
			return nil, fmt.Errorf("failed to send monitor report: %w", err)
		}
	}

	return map[string]any{
		"checked": len(results),
		"failed":  len(failures),
	}, nil
}

func (m *MonitorSockets) probeAll(ctx context.Context, urls []string, timeout time.Duration) []probeResult {
	client := &http.Client{Timeout: timeout}
	results := make([]probeResult, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = m.probe(ctx, client, url)
		}(i, url)
	}
	wg.Wait()
	return results
}

func (m *MonitorSockets) probe(ctx context.Context, client *http.Client, url string) probeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return probeResult{url: url, err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		m.logger.Warn("socket probe failed", zap.String("url", url), zap.Error(err))
		return probeResult{url: url, err: err}
	}
	defer resp.Body.Close()
	return probeResult{url: url, status: resp.StatusCode}
}

func failureReport(failures []probeResult) string {
	var b strings.Builder
	b.WriteString("<h2>Socket monitor report</h2>")
	b.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>URL</th><th>Result</th></tr>")
	for _, f := range failures {
		detail := fmt.Sprintf("HTTP %d", f.status)
		if f.err != nil {
			detail = f.err.Error()
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", f.url, detail)
	}
	b.WriteString("</table>")
	return b.String()
}
