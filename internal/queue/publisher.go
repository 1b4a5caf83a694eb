// Package queue publishes rebuild jobs for external build workers over NATS
// JetStream. The core arbitrates shared state but never executes builds;
// workers consume jobs from the stream and report back through the tracker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/metrics"
)

// RebuildJob is the wire form of one queued rebuild.
type RebuildJob struct {
	ID          string    `json:"id"`
	Package     string    `json:"package"`
	Version     string    `json:"version"`
	NightlyDate string    `json:"nightly_date"`
	LastAttempt time.Time `json:"last_attempt"`
	QueuedAt    time.Time `json:"queued_at"`
}

// Options configures the publisher connection.
type Options struct {
	URL     string
	Stream  string
	Subject string
}

// Publisher manages the NATS connection and rebuild-job stream.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	rec     metrics.Recorder
}

// NewPublisher connects to NATS and ensures the rebuild-job stream exists.
func NewPublisher(opts Options, rec metrics.Recorder) (*Publisher, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	conn, err := nats.Connect(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        opts.Stream,
		Description: "Documentation rebuild jobs",
		Subjects:    []string{opts.Subject},
		Retention:   jetstream.WorkQueuePolicy,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure job stream: %w", err)
	}

	slog.Info("Rebuild job publisher initialized",
		slog.String("url", opts.URL),
		slog.String("stream", opts.Stream),
		logfields.Subject(opts.Subject))

	return &Publisher{conn: conn, js: js, subject: opts.Subject, rec: rec}, nil
}

// Enqueue publishes one rebuild job per stale release. Publishing stops at
// the first error so a transient outage never half-acknowledges a batch.
func (p *Publisher) Enqueue(ctx context.Context, batch []catalog.StaleRelease) error {
	for _, sr := range batch {
		job := RebuildJob{
			ID:          uuid.NewString(),
			Package:     sr.Package,
			Version:     sr.Version,
			NightlyDate: catalog.FormatNightlyDate(sr.NightlyDate),
			LastAttempt: sr.LastAttempt,
			QueuedAt:    time.Now().UTC(),
		}
		data, err := json.Marshal(job)
		if err != nil {
			p.rec.IncQueuePublish(metrics.ResultError)
			return fmt.Errorf("failed to marshal rebuild job: %w", err)
		}
		if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
			p.rec.IncQueuePublish(metrics.ResultError)
			return fmt.Errorf("failed to publish rebuild job for %s/%s: %w", sr.Package, sr.Version, err)
		}
		p.rec.IncQueuePublish(metrics.ResultSuccess)
		slog.Debug("Rebuild job published",
			logfields.Package(sr.Package),
			logfields.Version(sr.Version),
			slog.String("job_id", job.ID))
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
