package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/autopost/internal/domain"
)

// lifecycle implements the status transitions shared by jobs and post_jobs.
// Every transition is a conditional update on the current status so that
// concurrent pollers cannot both win the same row.
type lifecycle struct {
	db    *sqlx.DB
	table string
	now   func() time.Time
}

// Claim moves a pending row to processing. It reports false, without error,
// when another caller already claimed it.
func (l *lifecycle) Claim(ctx context.Context, id string) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`UPDATE `+l.table+` SET status = ?, started_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		domain.JobStatusProcessing, now, now, id, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", l.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", l.table, id, err)
	}
	return n == 1, nil
}

// Complete moves a processing row to completed.
func (l *lifecycle) Complete(ctx context.Context, id string, result domain.JobResult) error {
	now := l.now()
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`UPDATE `+l.table+` SET status = ?, completed_at = ?, updated_at = ?,
		        result_url = ?, result_msg = ?, error_message = NULL
		 WHERE id = ? AND status = ?`),
		domain.JobStatusCompleted, now, now,
		nullString(result.URL), nullString(result.Message),
		id, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("complete %s %s: %w", l.table, id, err)
	}
	return l.checkTransition(ctx, res, id, domain.JobStatusCompleted)
}

// Fail moves a processing row to failed, keeping message verbatim.
func (l *lifecycle) Fail(ctx context.Context, id string, message string) error {
	now := l.now()
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`UPDATE `+l.table+` SET status = ?, completed_at = ?, updated_at = ?, error_message = ?
		 WHERE id = ? AND status = ?`),
		domain.JobStatusFailed, now, now, message, id, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("fail %s %s: %w", l.table, id, err)
	}
	return l.checkTransition(ctx, res, id, domain.JobStatusFailed)
}

// FailProcessing fails a row only if it is still processing. It reports
// whether the row was changed.
func (l *lifecycle) FailProcessing(ctx context.Context, id string, message string) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`UPDATE `+l.table+` SET status = ?, completed_at = ?, updated_at = ?, error_message = ?
		 WHERE id = ? AND status = ?`),
		domain.JobStatusFailed, now, now, message, id, domain.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail orphaned %s %s: %w", l.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail orphaned %s %s: %w", l.table, id, err)
	}
	return n == 1, nil
}

// ProcessingIDs returns the ids of every row currently processing.
func (l *lifecycle) ProcessingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := l.db.SelectContext(ctx, &ids, l.db.Rebind(
		`SELECT id FROM `+l.table+` WHERE status = ? ORDER BY started_at`),
		domain.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("list processing %s: %w", l.table, err)
	}
	return ids, nil
}

// Retry resets a failed row to pending and clears its previous outcome.
func (l *lifecycle) Retry(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, l.db.Rebind(
		`UPDATE `+l.table+` SET status = ?, updated_at = ?, started_at = NULL, completed_at = NULL,
		        result_url = NULL, result_msg = NULL, error_message = NULL
		 WHERE id = ? AND status = ?`),
		domain.JobStatusPending, l.now(), id, domain.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("retry %s %s: %w", l.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry %s %s: %w", l.table, id, err)
	}
	if n == 1 {
		return nil
	}
	status, err := l.status(ctx, l.db, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: only failed jobs can be retried, %s is %s", domain.ErrConflict, id, status)
}

// Delete removes a row and its log entries unless it is processing.
func (l *lifecycle) Delete(ctx context.Context, id string) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", l.table, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(
		`DELETE FROM `+l.table+` WHERE id = ? AND status <> ?`),
		id, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", l.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", l.table, id, err)
	}
	if n == 0 {
		if _, err := l.status(ctx, tx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrJobProcessing, id)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM job_logs WHERE job_id = ?`), id); err != nil {
		return fmt.Errorf("delete logs of %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", l.table, err)
	}
	return nil
}

func (l *lifecycle) checkTransition(ctx context.Context, res sql.Result, id string, to domain.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", l.table, id, err)
	}
	if n == 1 {
		return nil
	}
	from, err := l.status(ctx, l.db, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s -> %s", domain.ErrInvalidTransition, id, from, to)
}

type rebindQueryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func (l *lifecycle) status(ctx context.Context, q rebindQueryer, id string) (domain.JobStatus, error) {
	var status domain.JobStatus
	err := sqlx.GetContext(ctx, q, &status, q.Rebind(`SELECT status FROM `+l.table+` WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s %s: %w", l.table, id, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read status of %s %s: %w", l.table, id, err)
	}
	return status, nil
}
