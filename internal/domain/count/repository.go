package count

import (
	"context"
	"time"
)

// Repository defines persistence operations for count documents.
// The aggregate is read and written whole: an upsert fully replaces the
// materials and registrations of the stored document.
type Repository interface {
	// FindByNormalizedID looks the document up by, in order, the normalized
	// id, the raw id, and the zero-padded-equivalent pattern, returning the
	// first hit. Historical records may have been persisted under any of the
	// three representations. Absence is a NOT_FOUND AppError.
	FindByNormalizedID(ctx context.Context, documentID string) (*Document, error)

	// Upsert inserts or replaces the document aggregate. The stored status is
	// preserved unless opts.SetStatus is given; new documents start pending.
	Upsert(ctx context.Context, doc *Document, opts UpsertOptions) (*Document, error)

	// List retrieves stored count documents with filtering and pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)
}

// UpsertOptions controls the status and concurrency behavior of an upsert.
type UpsertOptions struct {
	// SetStatus explicitly persists the given status. When nil a plain
	// content save preserves whatever status precedes it, and a finalized
	// stored document rejects the save outright.
	SetStatus *Status

	// ExpectedModifiedAt enables the optimistic check: the upsert fails with
	// CONCURRENT_MODIFICATION when the stored modified_at differs.
	ExpectedModifiedAt *time.Time
}

// ListFilter contains filtering options for document listings.
type ListFilter struct {
	Search   string
	Site     string
	Status   *Status
	DateFrom *time.Time
	DateTo   *time.Time

	OrderBy string
	Limit   int
	Offset  int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "modified_at DESC",
	}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Document `json:"items"`
	TotalCount int64       `json:"totalCount"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}
