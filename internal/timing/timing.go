package timing

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/progress"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordRun stores the summary of a finished run in ingest_runs.
func RecordRun(ctx context.Context, conn dbConn, runID string, summary progress.Summary) error {
	_, err := conn.Exec(ctx, recordRunSQL,
		runID,
		summary.Attempted,
		summary.Succeeded,
		summary.Skipped,
		summary.Failed,
		summary.Elapsed.Milliseconds(),
	)
	return err
}

// PredictRunDuration estimates how long processing amount articles takes,
// from the mean time per processed article of previous runs. It returns 0
// when there is no history.
func PredictRunDuration(ctx context.Context, conn dbConn, amount int64) (time.Duration, error) {
	if amount <= 0 {
		return 0, nil
	}
	var msPerArticle float64
	if err := conn.QueryRow(ctx, predictRunSQL).Scan(&msPerArticle); err != nil {
		return 0, err
	}
	return time.Duration(msPerArticle*float64(amount)) * time.Millisecond, nil
}

const recordRunSQL = `
INSERT INTO ingest_runs (run_id, attempted, succeeded, skipped, failed, duration_ms, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, now());
`

const predictRunSQL = `
SELECT COALESCE(SUM(duration_ms)::float8 / NULLIF(SUM(succeeded + failed), 0), 0)
FROM (
    SELECT duration_ms, succeeded, failed
    FROM ingest_runs
    WHERE succeeded + failed > 0
    ORDER BY finished_at DESC
    LIMIT 50
) recent;
`
