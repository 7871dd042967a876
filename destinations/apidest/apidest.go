// Package apidest implements an HTTP API destination. Record batches
// are POSTed as a single JSON document through the SSRF-safe client.
package apidest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/skeinhq/skein/errors"
	"github.com/skeinhq/skein/ingest"
	"github.com/skeinhq/skein/internal/httpclient"
)

// PluginType is the registry name for this destination.
const PluginType = "api"

// Options tunes connector behavior shared across all api-destination
// tasks.
type Options struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// AllowPrivateIP disables private-address blocking. Test use only.
	AllowPrivateIP bool
}

// Destination delivers records to a remote HTTP endpoint.
type Destination struct {
	endpoint string
	client   *httpclient.SaferClient
	logger   *zap.SugaredLogger
}

// Factory returns a DestinationFactory for registration. Task
// configuration:
//
//	url: "https://downstream.example/ingest"
func Factory(opts Options, logger *zap.SugaredLogger) ingest.DestinationFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return func(config map[string]any) (ingest.Destination, error) {
		return &Destination{
			client: httpclient.NewWithOptions(opts.Timeout, httpclient.Options{
				AllowPrivateIP: opts.AllowPrivateIP,
			}),
			logger: logger,
		}, nil
	}
}

// Init validates the endpoint URL.
func (d *Destination) Init(config map[string]any) error {
	endpoint, _ := config["url"].(string)
	if endpoint == "" {
		return errors.New("api destination requires a url configuration")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Wrapf(err, "invalid url %q", endpoint)
	}
	if err := d.client.ValidateURL(u); err != nil {
		return errors.Wrapf(err, "url %q rejected", endpoint)
	}
	d.endpoint = endpoint
	return nil
}

// ProcessData POSTs the whole batch as one JSON document. Delivery is
// all-or-nothing: a non-2xx response fails the batch.
func (d *Destination) ProcessData(ctx context.Context, records []ingest.Record) (*ingest.Status, error) {
	body, err := json.Marshal(map[string]any{"records": records})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal record batch")
	}

	resp, err := d.client.Post(ctx, d.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to deliver to %s", d.endpoint)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ingest.Failuref(resp.StatusCode, "endpoint %s rejected batch with status %d", d.endpoint, resp.StatusCode), nil
	}

	d.logger.Infow("API delivery complete",
		"endpoint", d.endpoint,
		"records", len(records),
		"status_code", resp.StatusCode,
	)
	return ingest.OKWithData(
		fmt.Sprintf("delivered %d records", len(records)),
		map[string]any{"records": len(records), "status_code": resp.StatusCode},
	), nil
}
