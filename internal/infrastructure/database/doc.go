// Package database provides the SQLite connection behind the frame journal.
//
// It manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Schema migrations registered from the embedded migrations package
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.FromJournal(cfg.Journal))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
package database
