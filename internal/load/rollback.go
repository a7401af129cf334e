package load

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bincheck/binetl/internal/db"
)

// Rollback deletes every bins row stamped with the given version hash and
// returns how many rows existed before and remain after. Marking the
// corresponding run rolled_back is the caller's job; a hash can also be
// rolled back with no run on record.
func Rollback(ctx context.Context, pool db.Pool, versionHash string) (before, after int, err error) {
	log := zap.L().With(zap.String("component", "load.rollback"))

	err = pool.QueryRow(ctx,
		"SELECT COUNT(*)::int FROM bin_data.bins WHERE version_hash = $1",
		versionHash,
	).Scan(&before)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "rollback: count rows for version %s", versionHash)
	}

	log.Info("rolling back version",
		zap.String("version_hash", versionHash),
		zap.Int("rows", before))

	if _, err = pool.Exec(ctx,
		"DELETE FROM bin_data.bins WHERE version_hash = $1",
		versionHash,
	); err != nil {
		return before, 0, eris.Wrapf(err, "rollback: delete rows for version %s", versionHash)
	}

	err = pool.QueryRow(ctx,
		"SELECT COUNT(*)::int FROM bin_data.bins WHERE version_hash = $1",
		versionHash,
	).Scan(&after)
	if err != nil {
		return before, 0, eris.Wrapf(err, "rollback: recount rows for version %s", versionHash)
	}

	return before, after, nil
}
