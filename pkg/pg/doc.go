// Package pg bootstraps the PostgreSQL pool that stores flag snapshots.
//
// Config is populated from PG_* environment variables. Connect opens a
// pgxpool.Pool with linear retry, Migrate applies goose migrations from an
// fs.FS (the snapshot package embeds its own), and the Is* helpers classify
// driver errors.
//
//	pool, err := pg.Connect(ctx, cfg, log)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := snapshot.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
package pg
