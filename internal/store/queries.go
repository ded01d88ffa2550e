package store

const jobColumns = `id, type, payload, status, priority, created_by, created_at, attempts, last_error, not_before, started_at, completed_at`

const (
	insertJob = `
		INSERT INTO print_jobs (id, type, payload, status, priority, created_by, created_at, attempts)
		VALUES (?, ?, ?, 'pending', ?, ?, ?, 0)
	`

	getJobByID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE id = ?
	`

	listJobs = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT ?
	`

	listJobsByStatus = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE status = ?
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT ?
	`

	selectNextPending = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE status = 'pending' AND (not_before IS NULL OR not_before <= ?)
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT 1
	`

	getJobAttempts = `
		SELECT attempts FROM print_jobs WHERE id = ?
	`

	claimJob = `
		UPDATE print_jobs SET status = 'processing', started_at = ?
		WHERE id = ? AND status = 'pending'
	`

	completeJob = `
		UPDATE print_jobs SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'processing'
	`

	failJob = `
		UPDATE print_jobs SET
			attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
			not_before = CASE WHEN attempts + 1 >= ? THEN NULL ELSE ? END,
			completed_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE NULL END
		WHERE id = ? AND status = 'processing'
	`

	failJobPermanent = `
		UPDATE print_jobs SET
			attempts = MAX(attempts + 1, ?),
			last_error = ?,
			status = 'failed',
			not_before = NULL,
			completed_at = ?
		WHERE id = ? AND status = 'processing'
	`

	reclaimStale = `
		UPDATE print_jobs SET
			attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
			not_before = NULL,
			completed_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE NULL END
		WHERE status = 'processing' AND started_at <= ?
	`

	countJobsByStatus = `
		SELECT status, COUNT(*) FROM print_jobs GROUP BY status
	`
)
