package export

import (
	"context"
	"fmt"
	"log"

	"leadatlas/api/internal/store"
)

// Store defines the data access the aggregator needs.
type Store interface {
	ListGroupLeadsPage(ctx context.Context, groupID string, includeLinked bool, offset, limit int) ([]store.Lead, error)
	ListLeadEmails(ctx context.Context, leadIDs []string) ([]store.LeadEmail, error)
	ListLeadPhones(ctx context.Context, leadIDs []string) ([]store.LeadPhone, error)
}

const (
	defaultPageSize       = 5000
	defaultChildBatchSize = 1000
)

// Aggregator pages through a group's leads and resolves their child
// email/phone rows in bounded batches.
type Aggregator struct {
	store Store
	// PageSize bounds a single leads query; pagination stops when a page
	// comes back short.
	PageSize int
	// ChildBatchSize caps the number of lead ids in one IN filter.
	ChildBatchSize int
	Membership     MembershipPolicy
	ChildFailure   ChildFailurePolicy
}

func NewAggregator(s Store) *Aggregator {
	return &Aggregator{
		store:          s,
		PageSize:       defaultPageSize,
		ChildBatchSize: defaultChildBatchSize,
		Membership:     PrimaryAndLinked,
		ChildFailure:   ChildSkip,
	}
}

// Aggregate collects every lead in the group, ordered by creation time, plus
// per-lead email and phone lists. Lead page failures are fatal; child batch
// failures follow the configured policy.
func (a *Aggregator) Aggregate(ctx context.Context, groupID string) (*Bundle, error) {
	pageSize := a.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	includeLinked := a.Membership == PrimaryAndLinked

	leads := make([]store.Lead, 0)
	for offset := 0; ; offset += pageSize {
		page, err := a.store.ListGroupLeadsPage(ctx, groupID, includeLinked, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list leads page at offset %d: %w", offset, err)
		}
		leads = append(leads, page...)
		if len(page) < pageSize {
			break
		}
	}

	bundle := &Bundle{
		Leads:        leads,
		EmailsByLead: make(map[string][]string, len(leads)),
		PhonesByLead: make(map[string][]string, len(leads)),
	}

	ids := make([]string, len(leads))
	for i, lead := range leads {
		ids[i] = lead.ID
	}

	batchSize := a.ChildBatchSize
	if batchSize <= 0 {
		batchSize = defaultChildBatchSize
	}
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		emails, err := a.store.ListLeadEmails(ctx, batch)
		if err != nil {
			if a.ChildFailure == ChildAbort {
				return nil, fmt.Errorf("list emails batch at %d: %w", start, err)
			}
			log.Printf("export: skipping email batch at %d for group %s: %v", start, groupID, err)
		}
		for _, email := range emails {
			bundle.EmailsByLead[email.LeadID] = append(bundle.EmailsByLead[email.LeadID], email.Email)
		}

		phones, err := a.store.ListLeadPhones(ctx, batch)
		if err != nil {
			if a.ChildFailure == ChildAbort {
				return nil, fmt.Errorf("list phones batch at %d: %w", start, err)
			}
			log.Printf("export: skipping phone batch at %d for group %s: %v", start, groupID, err)
		}
		for _, phone := range phones {
			bundle.PhonesByLead[phone.LeadID] = append(bundle.PhonesByLead[phone.LeadID], phone.Phone)
		}
	}

	return bundle, nil
}
