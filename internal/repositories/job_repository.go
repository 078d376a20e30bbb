package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
)

const jobColumns = `id, status, scene, COALESCE(callback_url, ''), estimated_duration_seconds,
	result_object_name, result_url, error_message, file_size_bytes, COALESCE(claim_token, ''),
	attempts, created_at, updated_at, started_at, finished_at`

// JobRepository is the PostgreSQL ledger over the render_jobs table.
type JobRepository struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j     models.Job
		scene []byte
	)
	err := row.Scan(
		&j.ID,
		&j.Status,
		&scene,
		&j.CallbackURL,
		&j.EstimatedDurationSeconds,
		&j.ResultObjectName,
		&j.ResultURL,
		&j.ErrorMessage,
		&j.FileSizeBytes,
		&j.ClaimToken,
		&j.Attempts,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scene, &j.Scene); err != nil {
		return nil, fmt.Errorf("decode scene of job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	scene, err := json.Marshal(job.Scene)
	if err != nil {
		return errors.Wrap(err, "ledger.create", "encode scene")
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO render_jobs (id, status, scene, callback_url, estimated_duration_seconds)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING created_at, updated_at
	`, job.ID, models.StatusPending, scene, job.CallbackURL, job.EstimatedDurationSeconds,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrJobExists
		}
		return errors.Wrap(err, "ledger.create", "insert job")
	}
	job.Status = models.StatusPending
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM render_jobs WHERE id = $1`, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, errors.Wrap(err, "ledger.get", "load job")
	}
	return j, nil
}

func (r *JobRepository) ListStartable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Job, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		WHERE status = 'pending'
		   OR (status = 'processing' AND updated_at < $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, staleBefore.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.list", "query startable jobs")
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "ledger.list", "scan job")
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "ledger.list", "iterate jobs")
	}
	return out, nil
}

// Claim is a single conditional UPDATE. Under READ COMMITTED a second
// concurrent claimer re-evaluates the WHERE clause against the committed row
// and matches nothing.
func (r *JobRepository) Claim(ctx context.Context, id, token string, staleBefore time.Time) (*models.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE render_jobs
		SET status = 'processing',
		    claim_token = $2,
		    attempts = attempts + 1,
		    started_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'processing' AND updated_at < $3))
		RETURNING `+jobColumns,
		id, token, staleBefore.UTC()))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimConflict
		}
		return nil, errors.Wrap(err, "ledger.claim", "claim job")
	}
	return j, nil
}

func (r *JobRepository) Renew(ctx context.Context, id, token string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET updated_at = now()
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`, id, token)
	if err != nil {
		return errors.Wrap(err, "ledger.renew", "renew lease")
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, id, token string, c models.Completion) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET status = 'done',
		    result_object_name = $3,
		    result_url = NULLIF($4, ''),
		    file_size_bytes = $5,
		    error_message = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`, id, token, c.ObjectName, c.URL, c.FileSizeBytes)
	if err != nil {
		return errors.Wrap(err, "ledger.complete", "mark job done")
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, id, token, message string) error {
	if message == "" {
		message = "render failed"
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET status = 'error',
		    error_message = $3,
		    result_object_name = NULL,
		    result_url = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`, id, token, errors.Truncate(message, MaxErrorMessageLen))
	if err != nil {
		return errors.Wrap(err, "ledger.fail", "mark job failed")
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (r *JobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM render_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "ledger.count", "count jobs")
	}
	defer rows.Close()

	out := make(map[models.JobStatus]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = 0
	}
	for rows.Next() {
		var (
			s models.JobStatus
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, errors.Wrap(err, "ledger.count", "scan count")
		}
		out[s] = n
	}
	return out, rows.Err()
}

// Ping checks connectivity for health probes.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
