// Package web implements an HTTP source connector. It fetches one or
// more configured URLs through the SSRF-safe client, politeness-limited
// so a busy cron schedule cannot hammer a remote host.
package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
	"github.com/skeinhq/skein/internal/httpclient"
	"github.com/skeinhq/skein/internal/jsonpath"
)

// PluginType is the registry name for this connector.
const PluginType = "web"

// maxBodyBytes caps how much of a response body is retained per URL.
const maxBodyBytes = 10 << 20 // 10 MiB

// Options tunes connector behavior shared across all web-source tasks.
type Options struct {
	// RequestsPerMinute bounds outbound fetch rate per source instance.
	RequestsPerMinute int
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// AllowPrivateIP disables private-address blocking. Test use only.
	AllowPrivateIP bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		RequestsPerMinute: 30,
		Timeout:           30 * time.Second,
	}
}

// Source fetches configured URLs and emits one raw item per response.
type Source struct {
	urls        []string
	payloadPath string
	client      *httpclient.SaferClient
	limiter     *rate.Limiter
	logger      *zap.SugaredLogger
}

// Factory returns a SourceFactory for registration. Task configuration:
//
//	url:  "https://example.com/feed"        single URL
//	urls: ["https://a.example", "https://b.example"]
//	payload_url_path: "repository.html_url" pull an extra URL out of the
//	                                        trigger payload at run time
func Factory(opts Options, logger *zap.SugaredLogger) ingest.SourceFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultOptions().RequestsPerMinute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	return func(config map[string]any) (ingest.Source, error) {
		payloadPath, _ := config["payload_url_path"].(string)
		urls, err := urlsFromConfig(config)
		if err != nil {
			return nil, err
		}
		if len(urls) == 0 && payloadPath == "" {
			return nil, errors.New("web source requires a url, urls, or payload_url_path configuration")
		}
		return &Source{
			urls:        urls,
			payloadPath: payloadPath,
			client: httpclient.NewWithOptions(opts.Timeout, httpclient.Options{
				AllowPrivateIP: opts.AllowPrivateIP,
			}),
			limiter: rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1),
			logger:  logger,
		}, nil
	}
}

func urlsFromConfig(config map[string]any) ([]string, error) {
	var urls []string
	if raw, ok := config["url"].(string); ok && raw != "" {
		urls = append(urls, raw)
	}
	if raw, ok := config["urls"].([]any); ok {
		for _, entry := range raw {
			s, ok := entry.(string)
			if !ok || s == "" {
				return nil, errors.Newf("urls entries must be non-empty strings, got %T", entry)
			}
			urls = append(urls, s)
		}
	}
	return urls, nil
}

// InitClient validates every configured URL before the first fetch.
func (s *Source) InitClient(ctx context.Context) error {
	for _, raw := range s.urls {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid url %q", raw)
		}
		if err := s.client.ValidateURL(u); err != nil {
			return errors.Wrapf(err, "url %q rejected", raw)
		}
	}
	return nil
}

// Execute fetches every configured URL plus, when payload_url_path is
// set, the URL extracted from the trigger payload. One failed fetch
// fails the run; the result message names the URL that broke.
func (s *Source) Execute(ctx context.Context, payload map[string]any) (*ingest.Status, error) {
	urls := s.urls
	if s.payloadPath != "" {
		extracted, ok := s.payloadURL(payload)
		if !ok {
			if len(urls) == 0 {
				return ingest.Failuref(400, "trigger payload has no URL at %s", s.payloadPath), nil
			}
		} else if err := s.validateURL(extracted); err != nil {
			return ingest.Failuref(400, "payload URL %s rejected: %v", extracted, err), nil
		} else {
			urls = append(append([]string(nil), urls...), extracted)
		}
	}

	items := make([]any, 0, len(urls))
	for _, raw := range urls {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter interrupted")
		}

		item, err := s.fetch(ctx, raw)
		if err != nil {
			return ingest.Failuref(502, "fetch failed for %s: %v", raw, err), nil
		}
		items = append(items, item)
	}

	s.logger.Infow("Web fetch complete", "urls", len(urls), "items", len(items))
	return ingest.OKWithData(
		fmt.Sprintf("fetched %d URLs", len(items)),
		map[string]any{ingest.DataKeyItems: items},
	), nil
}

// payloadURL resolves payload_url_path against the trigger payload.
// Webhook payloads arrive wrapped under "webhookPayload"; paths are
// written against the inbound document, not the wrapper.
func (s *Source) payloadURL(payload map[string]any) (string, bool) {
	doc := any(payload)
	if inner, ok := payload["webhookPayload"]; ok {
		doc = inner
	}
	return jsonpath.GetString(doc, s.payloadPath)
}

func (s *Source) validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	return s.client.ValidateURL(u)
}

func (s *Source) fetch(ctx context.Context, rawURL string) (map[string]any, error) {
	resp, err := s.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	return map[string]any{
		"url":          rawURL,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"content":      string(body),
	}, nil
}

// Transform converts raw fetch items into records. The record id is a
// content-independent digest of the URL so re-fetches of the same page
// overwrite rather than duplicate downstream.
func Transform(ctx context.Context, rawItems []any, payload map[string]any) ([]ingest.Record, error) {
	records := make([]ingest.Record, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Newf("web transform expects map items, got %T", raw)
		}
		pageURL, _ := item["url"].(string)
		if pageURL == "" {
			return nil, errors.New("web transform item missing url")
		}

		digest := sha256.Sum256([]byte(pageURL))
		records = append(records, ingest.Record{
			ID:      "web-" + hex.EncodeToString(digest[:8]),
			Content: item["content"],
			Metadata: map[string]any{
				"url":         pageURL,
				"contentType": item["content_type"],
				"statusCode":  item["status_code"],
			},
		})
	}
	return records, nil
}
