package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type JobOperations struct {
	db *sql.DB
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*JobRecord, error) {
	j := &JobRecord{}
	err := row.Scan(
		&j.ID, &j.InstanceID, &j.JobID, &j.BatchID, &j.BatchStart, &j.BatchEnd, &j.Standalone,
		&j.SourceURL, &j.EffectiveURL, &j.Filename, &j.Pages, &j.Orientation, &j.PaperSize, &j.Printer,
		&j.Status, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.DurationMs)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (o *JobOperations) RecordJob(ctx context.Context, j *JobRecord) error {
	result, err := o.db.ExecContext(ctx, InsertJob,
		j.InstanceID, j.JobID, j.BatchID, j.BatchStart, j.BatchEnd, j.Standalone,
		j.SourceURL, j.EffectiveURL, j.Filename, j.Pages, j.Orientation, j.PaperSize, j.Printer,
		j.Status, j.ErrorMessage, j.CreatedAt.UTC(), j.StartedAt.UTC(), j.CompletedAt.UTC(), j.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job record id: %w", err)
	}
	j.ID = id
	return nil
}

func (o *JobOperations) GetJobByID(ctx context.Context, id int64) (*JobRecord, error) {
	j, err := scanJob(o.db.QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*JobRecord, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "completed_at >= ?")
		args = append(args, filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "completed_at <= ?")
		args = append(args, filter.ToDate.UTC())
	}

	orderDir := "DESC"
	if strings.EqualFold(filter.OrderDir, "asc") {
		orderDir = "ASC"
	}

	query := ListJobs
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id %s", orderDir)

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *JobOperations) Stats(ctx context.Context, since time.Time) (*JobStats, error) {
	s := &JobStats{}
	err := o.db.QueryRowContext(ctx, JobStatsSince, since.UTC()).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return s, nil
}

func (o *JobOperations) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := o.db.ExecContext(ctx, DeleteJobsBefore, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}
