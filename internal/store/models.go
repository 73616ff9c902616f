package store

import (
	"encoding/json"
	"time"
)

// Export status values persisted on lead_groups.export_status and
// export_jobs.state. The group column reflects the most recently
// requested export regardless of format.
const (
	ExportStatusNone       = "none"
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusError      = "error"
)

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

type LeadGroup struct {
	ID           string
	UserID       string
	Name         string
	LeadCount    int
	CSVURL       *string
	CSVCreatedAt *time.Time
	VCFURL       *string
	VCFCreatedAt *time.Time
	ExportStatus string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Lead struct {
	ID             string
	UserID         string
	PrimaryGroupID *string
	Name           string
	Company        string
	Address        string
	City           string
	District       string
	PlusCode       string
	Phone          string
	Website        string
	Rating         *float64
	ReviewCount    *int
	BusinessType   string
	GoogleMapsURL  string
	WorkingHours   json.RawMessage
	CreatedAt      time.Time
}

type LeadEmail struct {
	ID        string
	LeadID    string
	Email     string
	CreatedAt time.Time
}

type LeadPhone struct {
	ID        string
	LeadID    string
	Phone     string
	CreatedAt time.Time
}

type ExportJob struct {
	ID           string
	GroupID      string
	Format       string
	State        string
	WorkerToken  string
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}
