// Package obssink forwards ingested event bundles to a NATS subject on a
// best-effort basis, propagating the caller's trace context via headers.
package obssink

import (
	"context"
	"fmt"

	nats "github.com/nats-io/nats.go"
	"github.com/swarmguard/leviathan/internal/natsctx"
)

// NATSForwarder publishes event bundles to a fixed subject for whatever
// downstream consumer (metrics pipeline, audit log, replay feeder) wants
// to observe ingestion without being on the request's critical path.
type NATSForwarder struct {
	Conn    *nats.Conn
	Subject string
}

// NewNATSForwarder connects to url and returns a forwarder publishing to
// subject. Connection loss after construction does not block ingest: the
// caller's Forward calls simply start failing and are logged, never
// retried.
func NewNATSForwarder(url, subject string) (*NATSForwarder, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSForwarder{Conn: nc, Subject: subject}, nil
}

// Forward satisfies ingest.Sink.
func (f *NATSForwarder) Forward(bundle []byte) error {
	return natsctx.Publish(context.Background(), f.Conn, f.Subject, bundle)
}

// Close drains and closes the underlying connection.
func (f *NATSForwarder) Close() error {
	return f.Conn.Drain()
}
