// Package entities is the on-device record store.
//
// Every version of every entity is one row in the entities table. Relational
// children (notes, outcome values, schedule elements) live in
// entity_children and are replaced as a set whenever their parent is
// upserted. Rows with pending=1 hold local edits the next sync round pushes.
//
// The SQLite implementation satisfies the engine's LocalStore and the chain
// manager's Store, and notifies subscribers whenever a pending change lands,
// which drives auto-sync.
//
// Typical Usage
//
//	repo := entities.NewSQLiteRepository(db)
//	_ = repo.Upsert(ctx, e)
//	pending, _ := repo.ListPending(ctx, models.KindPatient)
//	changes, cancel := repo.Subscribe()
package entities
