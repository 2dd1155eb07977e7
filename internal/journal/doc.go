// Package journal keeps a local SQLite record of what a pubsub client did:
// status changes, message deliveries and publishes.
//
// The journal is optional (journal.enabled in config.yaml). The CLI attaches
// a Recorder to its client and "mqttrx journal" prints the recent entries.
//
//	db, _ := database.Open(cfg.Journal)
//	_ = db.Migrate(ctx, migrations.FS)
//
//	rec := journal.NewRecorder(journal.NewSQLiteRepository(db.DB))
//	client := pubsub.New(transport, pubsub.WithRecorder(rec))
//	defer client.End() // closes rec after the last event
package journal
