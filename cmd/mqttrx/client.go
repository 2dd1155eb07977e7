package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/nerrad567/mqttrx/internal/infrastructure/database"
	"github.com/nerrad567/mqttrx/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/journal"
	"github.com/nerrad567/mqttrx/internal/pubsub"
	"github.com/nerrad567/mqttrx/migrations"
)

// newClient builds a pubsub client on the paho transport, with the telemetry
// and journal recorders attached when they are enabled. Ending the client
// closes the recorders.
func (a *app) newClient(ctx context.Context) (*pubsub.Client, error) {
	var recorders []pubsub.Recorder

	if a.cfg.Telemetry.Enabled {
		influx, err := influxdb.Connect(a.cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influx.SetOnError(func(err error) {
			a.log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influx)
		a.log.Info("telemetry enabled", "url", a.cfg.Telemetry.URL, "bucket", a.cfg.Telemetry.Bucket)
	}

	if a.cfg.Journal.Enabled {
		sink, err := a.openJournal(ctx)
		if err != nil {
			closeRecorders(recorders)
			return nil, err
		}
		recorders = append(recorders, sink)
		a.log.Info("journal enabled", "path", a.cfg.Journal.Path)
	}

	transport := mqtt.New(mqtt.WithLogger(a.log.With("component", "mqtt")))

	return pubsub.New(transport,
		pubsub.WithLogger(a.log.With("component", "pubsub")),
		pubsub.WithRecorder(pubsub.MultiRecorder(recorders...)),
	), nil
}

// openJournalDB opens and migrates the journal database.
func (a *app) openJournalDB(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(a.cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating journal: %w", err)
	}
	return db, nil
}

func (a *app) openJournal(ctx context.Context) (*journalSink, error) {
	db, err := a.openJournalDB(ctx)
	if err != nil {
		return nil, err
	}
	rec := journal.NewRecorder(journal.NewSQLiteRepository(db.DB), journal.WithLogger(a.log))
	return &journalSink{Recorder: rec, db: db}, nil
}

// journalSink is a journal recorder that owns its database.
type journalSink struct {
	*journal.Recorder
	db *database.DB
}

// Close flushes the recorder, then closes the database.
func (s *journalSink) Close() error {
	return multierr.Append(s.Recorder.Close(), s.db.Close())
}

func closeRecorders(recorders []pubsub.Recorder) {
	if closer, ok := pubsub.MultiRecorder(recorders...).(interface{ Close() error }); ok {
		closer.Close() //nolint:errcheck // Best effort cleanup on error path
	}
}
