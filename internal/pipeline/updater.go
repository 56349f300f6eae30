package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bsjerps/qdda-go/internal/ring"
)

// runUpdater drains used ring slots and writes every block's hash and
// compressed size into the scan's long-lived staging transaction,
// committing when the ring finishes. Matches threads.cpp's updater(): a
// single begin() before the loop and end() (commit) after it exits.
func runUpdater(ctx context.Context, sh *Shared) error {
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		ix, status := sh.Ring.AcquireUsed(ctx)
		if status != ring.OK {
			break
		}

		slot := sh.Ring.Slot(ix)
		if !sh.DryRun {
			sh.dbMu.Lock()
			for j := 0; j < slot.Used; j++ {
				if insErr := sh.Staging.InsertBlock(sh.tx, slot.Hashes[j], slot.Sizes[j]); insErr != nil {
					sh.dbMu.Unlock()
					sh.Ring.Release(ix)
					sh.tx.Rollback()
					return fmt.Errorf("updater: insert block: %w", insErr)
				}
			}
			sh.dbMu.Unlock()
		}
		slot.Reset()
		sh.Ring.Release(ix)
	}

	return commitOrRollback(sh.tx, ctx.Err())
}

func commitOrRollback(tx *sql.Tx, ctxErr error) error {
	if ctxErr != nil {
		if err := tx.Rollback(); err != nil {
			return fmt.Errorf("updater: rollback after cancellation: %w", err)
		}
		return ctxErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("updater: commit staging transaction: %w", err)
	}
	return nil
}
