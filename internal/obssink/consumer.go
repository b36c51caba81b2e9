package obssink

import (
	"context"
	"encoding/json"
	"log/slog"

	nats "github.com/nats-io/nats.go"
	"github.com/swarmguard/leviathan/internal/natsctx"
)

// BundleHandler processes one forwarded ingestion bundle.
type BundleHandler func(ctx context.Context, raw json.RawMessage)

// Subscribe attaches handler to the forwarder's subject, decoding the
// inbound trace context so a consumer's processing span nests under the
// ingest request that produced the bundle. Used by auxiliary observers
// (e.g. an audit-trail sidecar) that want every ingested bundle without
// sitting in the ingest API's request path.
func Subscribe(nc *nats.Conn, subject string, logger *slog.Logger, handler BundleHandler) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return natsctx.Subscribe(nc, subject, func(ctx context.Context, msg *nats.Msg) {
		var raw json.RawMessage
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			logger.Warn("dropping malformed observability bundle", "error", err)
			return
		}
		handler(ctx, raw)
	})
}
