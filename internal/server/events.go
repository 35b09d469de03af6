package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
	"git.home.luguber.info/inful/wayfind/internal/metrics"
)

// EventsPath is the route of the upstream events relay.
const EventsPath = "/api/events"

const fetchFailedBody = `{"error":"Failed to fetch events"}`

// EventsProxy relays the upstream display events feed.
type EventsProxy struct {
	upstreamBase string
	creds        Credentials
	client       *http.Client
	recorder     metrics.Recorder
}

// NewEventsProxy creates a proxy for upstreamBase. A nil client gets a 15s timeout.
func NewEventsProxy(upstreamBase string, creds Credentials, client *http.Client, recorder metrics.Recorder) *EventsProxy {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &EventsProxy{
		upstreamBase: strings.TrimRight(upstreamBase, "/"),
		creds:        creds,
		client:       client,
		recorder:     metrics.OrNoop(recorder),
	}
}

// UpstreamURL builds <base>/<displayId>?key=<apiKey>.
func (p *EventsProxy) UpstreamURL() string {
	return p.upstreamBase + "/" + url.PathEscape(p.creds.DisplayID()) + "?key=" + url.QueryEscape(p.creds.APIKey())
}

// ServeHTTP answers 200 with the upstream body verbatim whatever the upstream status
// was; only transport and read failures produce the 500 error body.
func (p *EventsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	body, status, err := p.fetch(r.Context())
	p.recorder.ObserveProxyDuration(time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		p.recorder.IncProxyRequest(metrics.ResultError)
		slog.Warn("Failed to fetch events", logfields.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, fetchFailedBody)
		return
	}

	if status != http.StatusOK {
		p.recorder.IncProxyRequest(metrics.ResultFailed)
		slog.Warn("Upstream events returned non-OK status", logfields.Status(status))
	} else {
		p.recorder.IncProxyRequest(metrics.ResultSuccess)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (p *EventsProxy) fetch(ctx context.Context) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UpstreamURL(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
