// Package database provides SQLite connectivity for Blue Scout Core.
//
// It opens the store with WAL mode and a busy timeout, and applies schema
// migrations from any fs.FS (normally the embedded migrations package).
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Source()); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// each .up.sql has a matching .down.sql.
package database
