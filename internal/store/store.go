package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/qaraa/printd/internal/render"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotProcessing = errors.New("job is not processing")
)

const claimRetries = 5

type Config struct {
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

type Store struct {
	db  *sql.DB
	cfg Config
}

func New(db *sql.DB, cfg Config) *Store {
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &Store{db: db, cfg: cfg}
}

// Enqueue validates the payload against its declared type and inserts
// a pending record. A ValidationError means no record was created.
func (s *Store) Enqueue(ctx context.Context, typ string, payload json.RawMessage, createdBy string, priority int) (*PrintJob, error) {
	if err := render.ValidatePayload(typ, payload); err != nil {
		return nil, &ValidationError{Err: err}
	}

	job := &PrintJob{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Status:    StatusPending,
		Priority:  priority,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, insertJob,
		job.ID, job.Type, string(job.Payload), job.Priority, job.CreatedBy, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*PrintJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, getJobByID, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs in dispatch order: priority ascending, ties
// broken by creation time. An empty status lists all jobs; limit <= 0
// means no limit.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]*PrintJob, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx, listJobsByStatus, status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, listJobs, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically moves the lowest-order pending job to
// processing and returns it, or nil when no job is ready. The claim is
// a conditional update guarded by the pending status, so concurrent
// callers can never both win the same job; a lost race is retried
// internally against the next candidate.
func (s *Store) ClaimNext(ctx context.Context) (*PrintJob, error) {
	for i := 0; i < claimRetries; i++ {
		now := time.Now().UTC()

		job, err := scanJob(s.db.QueryRowContext(ctx, selectNextPending, now))
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select next pending job: %w", err)
		}

		res, err := s.db.ExecContext(ctx, claimJob, now, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected == 0 {
			// Lost the claim race; try the next candidate.
			continue
		}

		job.Status = StatusProcessing
		job.StartedAt = &now
		return job, nil
	}
	return nil, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, completeJob, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotProcessing
	}
	return nil
}

// MarkFailed records a failed attempt. The job returns to pending with
// a backoff delay before it can be re-claimed, or becomes terminally
// failed once attempts reaches maxAttempts. Returns the resulting
// status.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string, maxAttempts int) (JobStatus, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, getJobAttempts, id).Scan(&attempts)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read attempts: %w", err)
	}

	now := time.Now().UTC()
	notBefore := now.Add(s.backoffDelay(attempts + 1))

	res, err := s.db.ExecContext(ctx, failJob,
		errMsg, maxAttempts, maxAttempts, notBefore, maxAttempts, now, id)
	if err != nil {
		return "", fmt.Errorf("failed to mark job failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return "", ErrNotProcessing
	}

	if attempts+1 >= maxAttempts {
		return StatusFailed, nil
	}
	return StatusPending, nil
}

// MarkFailedPermanent fails the job immediately, forcing attempts to
// the maximum so no retry budget remains.
func (s *Store) MarkFailedPermanent(ctx context.Context, id string, errMsg string, maxAttempts int) error {
	res, err := s.db.ExecContext(ctx, failJobPermanent,
		maxAttempts, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotProcessing
	}
	return nil
}

// ReclaimStale recovers jobs stuck in processing longer than the
// threshold (crashed or hung dispatcher), charging a failed attempt
// exactly like MarkFailed. Returns the number of jobs touched.
func (s *Store) ReclaimStale(ctx context.Context, threshold time.Duration, maxAttempts int) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-threshold)

	res, err := s.db.ExecContext(ctx, reclaimStale,
		"reclaimed: processing past stale threshold", maxAttempts, maxAttempts, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, countJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// backoffDelay grows exponentially with the attempt number, with
// +/-20% jitter to avoid hot-looping a failing job in lockstep with
// the poll interval.
func (s *Store) backoffDelay(attempt int) time.Duration {
	if s.cfg.RetryBackoff <= 0 {
		return 0
	}
	backoff := s.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > s.cfg.MaxBackoff {
		backoff = s.cfg.MaxBackoff
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(backoff) * jitter)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	job := &PrintJob{}
	var payload string
	var lastError sql.NullString
	var notBefore, startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Type, &payload, &job.Status, &job.Priority,
		&job.CreatedBy, &job.CreatedAt, &job.Attempts,
		&lastError, &notBefore, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = json.RawMessage(payload)
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if notBefore.Valid {
		job.NotBefore = &notBefore.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}
