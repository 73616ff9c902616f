package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotClaimed = errors.New("export already processing")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name
	`, user.ID, user.DisplayName)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// Groups

func (s *PostgresStore) CreateGroup(ctx context.Context, group LeadGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_groups (id, user_id, name, export_status)
		VALUES ($1, $2, $3, 'none')
	`, group.ID, group.UserID, group.Name)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, userID string) ([]LeadGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, lead_count, csv_url, csv_created_at, vcf_url, vcf_created_at, export_status, created_at, updated_at
		FROM lead_groups
		WHERE user_id=$1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]LeadGroup, 0)
	for rows.Next() {
		var item LeadGroup
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.LeadCount, &item.CSVURL, &item.CSVCreatedAt, &item.VCFURL, &item.VCFCreatedAt, &item.ExportStatus, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (LeadGroup, error) {
	var item LeadGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, lead_count, csv_url, csv_created_at, vcf_url, vcf_created_at, export_status, created_at, updated_at
		FROM lead_groups
		WHERE id=$1
	`, groupID).Scan(&item.ID, &item.UserID, &item.Name, &item.LeadCount, &item.CSVURL, &item.CSVCreatedAt, &item.VCFURL, &item.VCFCreatedAt, &item.ExportStatus, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return LeadGroup{}, err
	}
	return item, nil
}

// AddLeadToGroup links a lead to a group through the membership table and
// bumps the group's updated_at, which invalidates any existing export
// artifact on the next freshness check.
func (s *PostgresStore) AddLeadToGroup(ctx context.Context, groupID, leadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add lead: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO lead_group_members (group_id, lead_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, lead_id) DO NOTHING
	`, groupID, leadID)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("membership rows affected: %w", err)
	}
	if added > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE lead_groups SET lead_count = lead_count + 1, updated_at = NOW() WHERE id=$1
		`, groupID); err != nil {
			return fmt.Errorf("bump group: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) RemoveLeadFromGroup(ctx context.Context, groupID, leadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove lead: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM lead_group_members WHERE group_id=$1 AND lead_id=$2
	`, groupID, leadID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("membership rows affected: %w", err)
	}
	if removed > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE lead_groups SET lead_count = GREATEST(lead_count - 1, 0), updated_at = NOW() WHERE id=$1
		`, groupID); err != nil {
			return fmt.Errorf("bump group: %w", err)
		}
	}
	return tx.Commit()
}

// Leads

func (s *PostgresStore) InsertLead(ctx context.Context, lead Lead, emails []LeadEmail, phones []LeadPhone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert lead: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leads (id, user_id, primary_group_id, name, company, address, city, district, plus_code,
			phone, website, rating, review_count, business_type, google_maps_url, working_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, lead.ID, lead.UserID, lead.PrimaryGroupID, lead.Name, lead.Company, lead.Address, lead.City,
		lead.District, lead.PlusCode, lead.Phone, lead.Website, lead.Rating, lead.ReviewCount,
		lead.BusinessType, lead.GoogleMapsURL, nullableJSON(lead.WorkingHours))
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}

	for _, email := range emails {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lead_emails (id, lead_id, email) VALUES ($1, $2, $3)
		`, email.ID, lead.ID, email.Email); err != nil {
			return fmt.Errorf("insert lead email: %w", err)
		}
	}
	for _, phone := range phones {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lead_phones (id, lead_id, phone) VALUES ($1, $2, $3)
		`, phone.ID, lead.ID, phone.Phone); err != nil {
			return fmt.Errorf("insert lead phone: %w", err)
		}
	}

	if lead.PrimaryGroupID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE lead_groups SET lead_count = lead_count + 1, updated_at = NOW() WHERE id=$1
		`, *lead.PrimaryGroupID); err != nil {
			return fmt.Errorf("bump primary group: %w", err)
		}
	}
	return tx.Commit()
}

// ListGroupLeadsPage returns one page of a group's leads ordered by creation
// time. With includeLinked set, leads attached through the membership table
// count as members alongside the primary-group foreign key.
func (s *PostgresStore) ListGroupLeadsPage(ctx context.Context, groupID string, includeLinked bool, offset, limit int) ([]Lead, error) {
	membership := `l.primary_group_id = $1`
	if includeLinked {
		membership = `(l.primary_group_id = $1 OR EXISTS (
			SELECT 1 FROM lead_group_members m WHERE m.group_id = $1 AND m.lead_id = l.id))`
	}
	query := fmt.Sprintf(`
		SELECT l.id, l.user_id, l.primary_group_id, l.name, l.company, l.address, l.city, l.district,
			l.plus_code, l.phone, l.website, l.rating, l.review_count, l.business_type,
			l.google_maps_url, l.working_hours, l.created_at
		FROM leads l
		WHERE %s
		ORDER BY l.created_at ASC, l.id ASC
		LIMIT $2 OFFSET $3
	`, membership)

	rows, err := s.db.QueryContext(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list group leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0, limit)
	for rows.Next() {
		var item Lead
		var workingHours sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.PrimaryGroupID, &item.Name, &item.Company,
			&item.Address, &item.City, &item.District, &item.PlusCode, &item.Phone, &item.Website,
			&item.Rating, &item.ReviewCount, &item.BusinessType, &item.GoogleMapsURL, &workingHours,
			&item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if workingHours.Valid {
			item.WorkingHours = []byte(workingHours.String)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListLeadEmails(ctx context.Context, leadIDs []string) ([]LeadEmail, error) {
	if len(leadIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, lead_id, email, created_at
		FROM lead_emails
		WHERE lead_id IN (%s)
		ORDER BY created_at ASC, id ASC
	`, placeholders(len(leadIDs)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(leadIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list lead emails: %w", err)
	}
	defer rows.Close()

	items := make([]LeadEmail, 0)
	for rows.Next() {
		var item LeadEmail
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Email, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead email: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead emails: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListLeadPhones(ctx context.Context, leadIDs []string) ([]LeadPhone, error) {
	if len(leadIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT id, lead_id, phone, created_at
		FROM lead_phones
		WHERE lead_id IN (%s)
		ORDER BY created_at ASC, id ASC
	`, placeholders(len(leadIDs)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(leadIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list lead phones: %w", err)
	}
	defer rows.Close()

	items := make([]LeadPhone, 0)
	for rows.Next() {
		var item LeadPhone
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Phone, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead phone: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead phones: %w", err)
	}
	return items, nil
}

// Export jobs

// ClaimGroupExport flips the group into processing, but only when no other
// export currently holds it. Returns ErrNotClaimed when another job won.
func (s *PostgresStore) ClaimGroupExport(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lead_groups SET export_status='processing'
		WHERE id=$1 AND export_status <> 'processing'
	`, groupID)
	if err != nil {
		return fmt.Errorf("claim export: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected: %w", err)
	}
	if claimed == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) InsertExportJob(ctx context.Context, job ExportJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (id, group_id, format, state, worker_token, started_at)
		VALUES ($1, $2, $3, 'processing', $4, NOW())
	`, job.ID, job.GroupID, job.Format, job.WorkerToken)
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishExportJob(ctx context.Context, jobID, state string, errorMessage *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs SET state=$2, error_message=$3, finished_at=NOW() WHERE id=$1
	`, jobID, state, errorMessage)
	if err != nil {
		return fmt.Errorf("finish export job: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExportJobs(ctx context.Context, groupID string, limit int) ([]ExportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, format, state, worker_token, error_message, started_at, finished_at
		FROM export_jobs
		WHERE group_id=$1
		ORDER BY started_at DESC
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	items := make([]ExportJob, 0)
	for rows.Next() {
		var item ExportJob
		if err := rows.Scan(&item.ID, &item.GroupID, &item.Format, &item.State, &item.WorkerToken, &item.ErrorMessage, &item.StartedAt, &item.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export jobs: %w", err)
	}
	return items, nil
}

// SetGroupExportResult records a finished artifact on the group row and marks
// the export completed. The URL column is chosen by format.
func (s *PostgresStore) SetGroupExportResult(ctx context.Context, groupID, format, url string, createdAt time.Time) error {
	var query string
	switch format {
	case "csv":
		query = `UPDATE lead_groups SET csv_url=$2, csv_created_at=$3, export_status='completed' WHERE id=$1`
	case "vcf":
		query = `UPDATE lead_groups SET vcf_url=$2, vcf_created_at=$3, export_status='completed' WHERE id=$1`
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	if _, err := s.db.ExecContext(ctx, query, groupID, url, createdAt); err != nil {
		return fmt.Errorf("set export result: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetGroupExportStatus(ctx context.Context, groupID, status string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE lead_groups SET export_status=$2 WHERE id=$1
	`, groupID, status); err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
