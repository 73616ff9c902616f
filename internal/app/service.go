package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"leadatlas/api/internal/config"
	"leadatlas/api/internal/export"
	"leadatlas/api/internal/session"
	"leadatlas/api/internal/store"
	"leadatlas/api/internal/util"

	"github.com/google/uuid"
)

type Session struct {
	Token    string
	UserID   string
	UserName string
}

// Store is the persistence surface the service depends on.
type Store interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, user store.User) error
	CreateGroup(ctx context.Context, group store.LeadGroup) error
	ListGroups(ctx context.Context, userID string) ([]store.LeadGroup, error)
	GetGroup(ctx context.Context, groupID string) (store.LeadGroup, error)
	AddLeadToGroup(ctx context.Context, groupID, leadID string) error
	RemoveLeadFromGroup(ctx context.Context, groupID, leadID string) error
	InsertLead(ctx context.Context, lead store.Lead, emails []store.LeadEmail, phones []store.LeadPhone) error
	ClaimGroupExport(ctx context.Context, groupID string) error
	InsertExportJob(ctx context.Context, job store.ExportJob) error
	FinishExportJob(ctx context.Context, jobID, state string, errorMessage *string) error
	ListExportJobs(ctx context.Context, groupID string, limit int) ([]store.ExportJob, error)
	SetGroupExportResult(ctx context.Context, groupID, format, url string, createdAt time.Time) error
	SetGroupExportStatus(ctx context.Context, groupID, status string) error
}

// SessionStore resolves bearer tokens; backed by Redis in production.
type SessionStore interface {
	Lookup(ctx context.Context, token string) (session.Data, error)
}

// Generator runs the aggregate-encode-publish pipeline for one group.
type Generator interface {
	Generate(ctx context.Context, group store.LeadGroup, format export.Format) (string, error)
}

type Service struct {
	cfg       config.Config
	store     Store
	sessions  SessionStore
	generator Generator
	runner    *exportRunner
}

func New(cfg config.Config, dataStore Store, sessions SessionStore, generator Generator) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		generator: generator,
	}
	workers := cfg.ExportWorkers
	if workers <= 0 {
		workers = 1
	}
	s.runner = newExportRunner(s, workers)
	return s
}

// Close stops the export workers and waits for in-flight jobs.
func (s *Service) Close() {
	if s.runner != nil {
		s.runner.stop()
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	data, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: data.UserID, UserName: data.DisplayName}, nil
}

// Groups

func (s *Service) CreateGroup(ctx context.Context, sess Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if err := s.store.EnsureUser(ctx, store.User{ID: sess.UserID, DisplayName: sess.UserName}); err != nil {
		return nil, err
	}
	group := store.LeadGroup{
		ID:     util.NewID("grp"),
		UserID: sess.UserID,
		Name:   name,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	created, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return groupPayload(created), nil
}

func (s *Service) ListGroups(ctx context.Context, sess Session) (map[string]any, error) {
	groups, err := s.store.ListGroups(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		items = append(items, groupPayload(group))
	}
	return map[string]any{"groups": items}, nil
}

func (s *Service) GetGroup(ctx context.Context, sess Session, groupID string) (map[string]any, error) {
	group, err := s.groupForUser(ctx, sess, groupID)
	if err != nil {
		return nil, err
	}
	return groupPayload(group), nil
}

func (s *Service) AddLeadToGroup(ctx context.Context, sess Session, groupID, leadID string) error {
	if strings.TrimSpace(leadID) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "leadId is required", nil)
	}
	if _, err := s.groupForUser(ctx, sess, groupID); err != nil {
		return err
	}
	return s.store.AddLeadToGroup(ctx, groupID, leadID)
}

func (s *Service) RemoveLeadFromGroup(ctx context.Context, sess Session, groupID, leadID string) error {
	if _, err := s.groupForUser(ctx, sess, groupID); err != nil {
		return err
	}
	return s.store.RemoveLeadFromGroup(ctx, groupID, leadID)
}

type LeadInput struct {
	PrimaryGroupID string          `json:"primaryGroupId"`
	Name           string          `json:"name"`
	Company        string          `json:"company"`
	Address        string          `json:"address"`
	City           string          `json:"city"`
	District       string          `json:"district"`
	PlusCode       string          `json:"plusCode"`
	Phone          string          `json:"phone"`
	Website        string          `json:"website"`
	Rating         *float64        `json:"rating"`
	ReviewCount    *int            `json:"reviewCount"`
	BusinessType   string          `json:"businessType"`
	GoogleMapsURL  string          `json:"googleMapsUrl"`
	WorkingHours   json.RawMessage `json:"workingHours"`
	Emails         []string        `json:"emails"`
	Phones         []string        `json:"phones"`
}

func (s *Service) CreateLead(ctx context.Context, sess Session, input LeadInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	var primaryGroupID *string
	if strings.TrimSpace(input.PrimaryGroupID) != "" {
		if _, err := s.groupForUser(ctx, sess, input.PrimaryGroupID); err != nil {
			return nil, err
		}
		primaryGroupID = &input.PrimaryGroupID
	}
	if err := s.store.EnsureUser(ctx, store.User{ID: sess.UserID, DisplayName: sess.UserName}); err != nil {
		return nil, err
	}

	lead := store.Lead{
		ID:             util.NewID("lead"),
		UserID:         sess.UserID,
		PrimaryGroupID: primaryGroupID,
		Name:           input.Name,
		Company:        input.Company,
		Address:        input.Address,
		City:           input.City,
		District:       input.District,
		PlusCode:       input.PlusCode,
		Phone:          input.Phone,
		Website:        input.Website,
		Rating:         input.Rating,
		ReviewCount:    input.ReviewCount,
		BusinessType:   input.BusinessType,
		GoogleMapsURL:  input.GoogleMapsURL,
		WorkingHours:   input.WorkingHours,
	}
	emails := make([]store.LeadEmail, 0, len(input.Emails))
	for _, email := range input.Emails {
		emails = append(emails, store.LeadEmail{ID: util.NewID("lem"), LeadID: lead.ID, Email: email})
	}
	phones := make([]store.LeadPhone, 0, len(input.Phones))
	for _, phone := range input.Phones {
		phones = append(phones, store.LeadPhone{ID: util.NewID("lph"), LeadID: lead.ID, Phone: phone})
	}
	if err := s.store.InsertLead(ctx, lead, emails, phones); err != nil {
		return nil, err
	}
	return map[string]any{"id": lead.ID}, nil
}

// Export

type ExportStatusResult struct {
	Status      string     `json:"status"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// ExportStatus is the pure status resolver: it reads the group row and
// reports completed (fresh artifact), processing, error, or pending. Safe to
// call at any polling rate; no side effects.
func (s *Service) ExportStatus(ctx context.Context, sess Session, groupID string, format export.Format) (ExportStatusResult, error) {
	group, err := s.groupForUser(ctx, sess, groupID)
	if err != nil {
		return ExportStatusResult{}, err
	}
	return resolveStatus(group, format), nil
}

// TriggerExport starts generation for the group unless a fresh artifact
// already exists. The claim is a conditional update on the group row, so of
// two concurrent triggers exactly one enqueues work; the loser observes
// processing.
func (s *Service) TriggerExport(ctx context.Context, sess Session, groupID string, format export.Format) (ExportStatusResult, error) {
	group, err := s.groupForUser(ctx, sess, groupID)
	if err != nil {
		return ExportStatusResult{}, err
	}

	current := resolveStatus(group, format)
	if current.Status == store.ExportStatusCompleted {
		return current, nil
	}
	if current.Status == store.ExportStatusProcessing {
		return current, nil
	}

	if err := s.store.ClaimGroupExport(ctx, groupID); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			return ExportStatusResult{Status: store.ExportStatusProcessing}, nil
		}
		return ExportStatusResult{}, err
	}

	job := store.ExportJob{
		ID:          util.NewID("job"),
		GroupID:     groupID,
		Format:      string(format),
		WorkerToken: uuid.NewString(),
	}
	if err := s.store.InsertExportJob(ctx, job); err != nil {
		// Release the claim so a retry is possible.
		_ = s.store.SetGroupExportStatus(ctx, groupID, store.ExportStatusPending)
		return ExportStatusResult{}, err
	}

	s.runner.enqueue(exportTask{group: group, format: format, jobID: job.ID})
	return ExportStatusResult{Status: store.ExportStatusProcessing}, nil
}

func (s *Service) ListExportJobs(ctx context.Context, sess Session, groupID string) (map[string]any, error) {
	if _, err := s.groupForUser(ctx, sess, groupID); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListExportJobs(ctx, groupID, 20)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		item := map[string]any{
			"id":        job.ID,
			"format":    job.Format,
			"state":     job.State,
			"startedAt": job.StartedAt,
		}
		if job.FinishedAt != nil {
			item["finishedAt"] = *job.FinishedAt
		}
		if job.ErrorMessage != nil {
			item["error"] = *job.ErrorMessage
		}
		items = append(items, item)
	}
	return map[string]any{"jobs": items}, nil
}

// resolveStatus applies the freshness rules to a group row. An artifact is
// fresh when its created_at is not older than the group's updated_at; any
// membership change after generation flips the report back to pending.
func resolveStatus(group store.LeadGroup, format export.Format) ExportStatusResult {
	url, createdAt := artifactFor(group, format)

	fresh := url != nil && createdAt != nil && !createdAt.Before(group.UpdatedAt)
	statusAllowsReuse := group.ExportStatus == store.ExportStatusCompleted ||
		group.ExportStatus == store.ExportStatusNone ||
		group.ExportStatus == ""
	if fresh && statusAllowsReuse {
		return ExportStatusResult{Status: store.ExportStatusCompleted, DownloadURL: *url, CreatedAt: createdAt}
	}
	if group.ExportStatus == store.ExportStatusProcessing {
		return ExportStatusResult{Status: store.ExportStatusProcessing}
	}
	if group.ExportStatus == store.ExportStatusError {
		return ExportStatusResult{Status: store.ExportStatusError}
	}
	return ExportStatusResult{Status: store.ExportStatusPending}
}

func artifactFor(group store.LeadGroup, format export.Format) (*string, *time.Time) {
	switch format {
	case export.FormatVCF:
		return group.VCFURL, group.VCFCreatedAt
	default:
		return group.CSVURL, group.CSVCreatedAt
	}
}

// groupForUser loads a group and hides its existence from non-owners.
func (s *Service) groupForUser(ctx context.Context, sess Session, groupID string) (store.LeadGroup, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LeadGroup{}, domainError(http.StatusNotFound, "NOT_FOUND", "Group not found", nil)
	}
	if err != nil {
		return store.LeadGroup{}, err
	}
	if group.UserID != sess.UserID {
		return store.LeadGroup{}, domainError(http.StatusNotFound, "NOT_FOUND", "Group not found", nil)
	}
	return group, nil
}

func groupPayload(group store.LeadGroup) map[string]any {
	payload := map[string]any{
		"id":           group.ID,
		"name":         group.Name,
		"leadCount":    group.LeadCount,
		"exportStatus": group.ExportStatus,
		"createdAt":    group.CreatedAt,
		"updatedAt":    group.UpdatedAt,
	}
	if group.CSVURL != nil {
		payload["csvUrl"] = *group.CSVURL
	}
	if group.CSVCreatedAt != nil {
		payload["csvCreatedAt"] = *group.CSVCreatedAt
	}
	if group.VCFURL != nil {
		payload["vcfUrl"] = *group.VCFURL
	}
	if group.VCFCreatedAt != nil {
		payload["vcfCreatedAt"] = *group.VCFCreatedAt
	}
	return payload
}
