package export

import (
	"context"
	"fmt"

	"leadatlas/api/internal/store"
)

// Publisher writes artifact bytes to durable storage and returns a long-lived
// retrieval URL.
type Publisher interface {
	Publish(ctx context.Context, path string, content []byte, contentType string) (string, error)
}

// Service runs the full generation pipeline for one group and format:
// aggregate, encode, publish.
type Service struct {
	aggregator *Aggregator
	publisher  Publisher
}

func NewService(aggregator *Aggregator, publisher Publisher) *Service {
	return &Service{
		aggregator: aggregator,
		publisher:  publisher,
	}
}

// Generate produces the artifact for the group and returns its signed URL.
// The object path is deterministic per group and format, so regeneration
// overwrites the previous artifact instead of accumulating copies.
func (s *Service) Generate(ctx context.Context, group store.LeadGroup, format Format) (string, error) {
	bundle, err := s.aggregator.Aggregate(ctx, group.ID)
	if err != nil {
		return "", fmt.Errorf("aggregate group %s: %w", group.ID, err)
	}

	var content []byte
	switch format {
	case FormatCSV:
		content, err = EncodeCSV(bundle)
		if err != nil {
			return "", fmt.Errorf("encode csv: %w", err)
		}
	case FormatVCF:
		content = EncodeVCF(bundle)
	default:
		return "", fmt.Errorf("unsupported format: %q", format)
	}

	path := ObjectPath(group.ID, group.Name, format)
	url, err := s.publisher.Publish(ctx, path, content, format.ContentType())
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", path, err)
	}
	return url, nil
}

// ObjectPath is the storage key for a group's artifact:
// groups/{id}/{sanitized_name}.{ext}. The date-stamped name from Filename is
// only for download time; keeping the key date-free lets regeneration
// overwrite the prior blob.
func ObjectPath(groupID, groupName string, format Format) string {
	return "groups/" + groupID + "/" + SanitizeGroupName(groupName) + "." + format.Ext()
}
