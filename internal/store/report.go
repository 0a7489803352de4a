package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemreport/apiserver/types"
)

// ReportRepository handles persistence for reports and their review trail.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `r.id, r.initiative_id, r.period, r.summary, r.challenges, r.next_steps, r.kpi_value,
	r.submitted_by, r.status, r.version, r.attachments, r.created_at, r.updated_at`

func scanReport(row interface{ Scan(...any) error }) (types.Report, error) {
	var report types.Report
	var kpiValue sql.NullFloat64
	var attachmentsJSON []byte
	err := row.Scan(
		&report.ID,
		&report.InitiativeID,
		&report.Period,
		&report.Summary,
		&report.Challenges,
		&report.NextSteps,
		&kpiValue,
		&report.SubmittedBy,
		&report.Status,
		&report.Version,
		&attachmentsJSON,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return types.Report{}, err
	}
	if kpiValue.Valid {
		v := kpiValue.Float64
		report.KPIValue = &v
	}
	report.Attachments = []types.Attachment{}
	_ = json.Unmarshal(attachmentsJSON, &report.Attachments)
	return report, nil
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (r *ReportRepository) Get(ctx context.Context, id string) (types.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports r WHERE r.id = $1`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return report, nil
}

// List returns one page of reports matching filter, newest first, and the
// total number of matches. A limit below one returns every match.
func (r *ReportRepository) List(ctx context.Context, filter types.ReportFilter, offset, limit int) ([]types.Report, int, error) {
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.InitiativeID != "" {
		add("r.initiative_id = $%d", filter.InitiativeID)
	}
	if filter.SubmittedBy != "" {
		add("r.submitted_by = $%d", filter.SubmittedBy)
	}
	if filter.Period != "" {
		add("r.period = $%d", filter.Period)
	}
	if filter.Status != "" {
		add("r.status = $%d", filter.Status)
	}
	if filter.StateName != "" {
		add("u.state_name = $%d", filter.StateName)
	}

	from := ` FROM reports r JOIN users u ON u.id = r.submitted_by`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reportColumns + from + ` ORDER BY r.updated_at DESC, r.id DESC`
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(` OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
		args = append(args, offset, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := []types.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (r *ReportRepository) Create(ctx context.Context, report types.Report) (types.Report, error) {
	now := time.Now().UTC()
	report.ID = uuid.NewString()
	report.Version = 1
	report.CreatedAt = now
	report.UpdatedAt = now
	if report.Attachments == nil {
		report.Attachments = []types.Attachment{}
	}

	attachmentsJSON, err := json.Marshal(report.Attachments)
	if err != nil {
		return types.Report{}, err
	}

	const query = `
		INSERT INTO reports (
			id, initiative_id, period, summary, challenges, next_steps, kpi_value,
			submitted_by, status, version, attachments, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		report.ID,
		report.InitiativeID,
		report.Period,
		report.Summary,
		report.Challenges,
		report.NextSteps,
		nullableFloat(report.KPIValue),
		report.SubmittedBy,
		report.Status,
		report.Version,
		string(attachmentsJSON),
		report.CreatedAt,
		report.UpdatedAt,
	); err != nil {
		return types.Report{}, err
	}
	return report, nil
}

// Transition applies t as a single transaction. It returns ErrConflict when
// the stored status or version no longer match the expected ones.
func (r *ReportRepository) Transition(ctx context.Context, t types.ReportTransition) (types.Report, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Report{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	set := []string{"status = $1", "version = version + 1", "updated_at = $2"}
	args := []any{t.NewStatus, now}
	if t.Fields != nil {
		set = append(set, "summary = $3", "challenges = $4", "next_steps = $5", "kpi_value = $6")
		args = append(args, t.Fields.Summary, t.Fields.Challenges, t.Fields.NextSteps, nullableFloat(t.Fields.KPIValue))
	}
	n := len(args)
	query := fmt.Sprintf(`
		UPDATE reports r
		SET %s
		WHERE r.id = $%d AND r.status = $%d AND r.version = $%d
		RETURNING `+reportColumns, strings.Join(set, ", "), n+1, n+2, n+3)
	args = append(args, t.ReportID, t.ExpectedStatus, t.ExpectedVersion)

	report, err := scanReport(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reports WHERE id = $1)`, t.ReportID).Scan(&exists); err != nil {
			return types.Report{}, err
		}
		if !exists {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, ErrConflict
	}

	if t.Review != nil {
		review := *t.Review
		const insertReview = `
			INSERT INTO report_reviews (id, report_id, reviewer_id, decision, note, from_status, to_status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.ExecContext(
			ctx,
			insertReview,
			uuid.NewString(),
			t.ReportID,
			review.ReviewerID,
			review.Decision,
			review.Note,
			t.ExpectedStatus,
			t.NewStatus,
			now,
		); err != nil {
			return types.Report{}, err
		}
	}

	if t.ApplyKPI != nil {
		const updateKPI = `UPDATE initiatives SET kpi_current_value = $1, updated_at = $2 WHERE id = $3`
		result, err := tx.ExecContext(ctx, updateKPI, t.ApplyKPI.CurrentValue, now, t.ApplyKPI.InitiativeID)
		if err != nil {
			return types.Report{}, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return types.Report{}, err
		}
		if affected == 0 {
			return types.Report{}, ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Report{}, err
	}
	return report, nil
}

// AddAttachment appends a to the report unless the report is approved, in
// which case ErrConflict is returned.
func (r *ReportRepository) AddAttachment(ctx context.Context, reportID string, a types.Attachment) (types.Report, error) {
	payload, err := json.Marshal([]types.Attachment{a})
	if err != nil {
		return types.Report{}, err
	}

	query := `
		UPDATE reports r
		SET attachments = r.attachments || $1::jsonb, updated_at = $2
		WHERE r.id = $3 AND r.status <> $4
		RETURNING ` + reportColumns
	report, err := scanReport(r.db.QueryRowContext(ctx, query, string(payload), time.Now().UTC(), reportID, types.StatusApproved))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, err
		}
		if _, getErr := r.Get(ctx, reportID); getErr != nil {
			return types.Report{}, getErr
		}
		return types.Report{}, ErrConflict
	}
	return report, nil
}

// Reviews lists the review trail of a report, oldest first.
func (r *ReportRepository) Reviews(ctx context.Context, reportID string) ([]types.ReportReview, error) {
	const query = `
		SELECT id, report_id, reviewer_id, decision, note, from_status, to_status, created_at
		FROM report_reviews
		WHERE report_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []types.ReportReview{}
	for rows.Next() {
		var review types.ReportReview
		if err := rows.Scan(
			&review.ID,
			&review.ReportID,
			&review.ReviewerID,
			&review.Decision,
			&review.Note,
			&review.FromStatus,
			&review.ToStatus,
			&review.CreatedAt,
		); err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}
