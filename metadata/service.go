package metadata

import (
	"context"

	"github.com/google/uuid"
)

// Service is a collection of the following:
// - a Metadata Repository for storing entity metadata documents
// - a Search Index for serving entity search
// - an Audit Log Repository for recording destructive operations
type Service struct {
	MetadataRepository MetadataRepository
	SearchIndex        SearchIndex
	AuditLogRepository AuditLogRepository
}

// MetadataRepository is an interface for a metadata document repository
type MetadataRepository interface {
	Create(ctx context.Context, account, urn string, metadata *Metadata) (*Metadata, error)
	Get(ctx context.Context, account, urn string) (*Metadata, error)
	Update(ctx context.Context, account, urn string, metadata *Metadata) (*Metadata, error)
	Delete(ctx context.Context, account, urn string) error
	List(ctx context.Context, account string) ([]string, error)
}

// SearchIndex is an interface for an entity search index
type SearchIndex interface {
	Index(account string, metadata *Metadata) error
	Remove(account, urn string)
	Search(account string, input *SearchInput) (*SearchResult, error)
}

// AuditLogRepository is an interface for audit log repository
type AuditLogRepository interface {
	CreateLog(ctx context.Context, group, stream string, retention int64, tags []*Tag) error
	Log(ctx context.Context, group, stream string) chan string
	GetLog(ctx context.Context, group, stream string) ([]string, error)
}

// ServiceOption is a function to set service options
type ServiceOption func(*Service)

// NewService creates a new metadata service with the provided ServiceOption functions
func NewService(opts ...ServiceOption) *Service {
	s := Service{}

	for _, opt := range opts {
		opt(&s)
	}

	return &s
}

// WithMetadataRepository sets the MetadataRepository for the service
func WithMetadataRepository(repo MetadataRepository) ServiceOption {
	return func(s *Service) {
		s.MetadataRepository = repo
	}
}

// WithSearchIndex sets the SearchIndex for the service
func WithSearchIndex(index SearchIndex) ServiceOption {
	return func(s *Service) {
		s.SearchIndex = index
	}
}

// WithAuditLogRepository sets the AuditLogRepository for the service
func WithAuditLogRepository(repo AuditLogRepository) ServiceOption {
	return func(s *Service) {
		s.AuditLogRepository = repo
	}
}

// NewAuditID generates a new id for correlating audit events
func (s *Service) NewAuditID() string {
	return uuid.New().String()
}
