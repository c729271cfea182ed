package db

const jobColumns = `id, instance_id, job_id, batch_id, batch_start, batch_end, standalone,
	source_url, effective_url, filename, pages, orientation, paper_size, printer,
	status, error_message, created_at, started_at, completed_at, duration_ms`

const (
	InsertJob = `
		INSERT INTO print_jobs (instance_id, job_id, batch_id, batch_start, batch_end, standalone,
			source_url, effective_url, filename, pages, orientation, paper_size, printer,
			status, error_message, created_at, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	ListJobs = `SELECT ` + jobColumns + ` FROM print_jobs`

	JobStatsSince = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0)
		FROM print_jobs WHERE completed_at >= ?
	`

	DeleteJobsBefore = `DELETE FROM print_jobs WHERE completed_at < ?`
)
