package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

// HTTPReporter posts a finished bundle to the ingest API's event-ingest
// endpoint, retrying transient failures with capped exponential backoff.
type HTTPReporter struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// Report satisfies Reporter.
func (r *HTTPReporter) Report(ctx context.Context, bundle Bundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/events/ingest", bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.Token)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("ingest returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("ingest rejected bundle: %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
