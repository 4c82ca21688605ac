package count

import (
	"context"
	"errors"
)

// Catalog fetch failure modes. The core treats both as "no authoritative data
// available" and never retries internally; retry policy belongs to the caller.
var (
	// ErrCatalogNotFound means the ERP knows no catalog at this identifier.
	ErrCatalogNotFound = errors.New("catalog not found")

	// ErrCatalogTransient covers network failures, timeouts and 5xx replies.
	ErrCatalogTransient = errors.New("catalog temporarily unavailable")
)

// CatalogFetcher retrieves the authoritative material/case catalog for a count
// document from the external ERP. Always called with the raw operator-entered
// id; the ERP is the one place allowed to apply its own interpretation.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, rawDocumentID string) (Catalog, error)
}

// Auditor records document-level actions for the audit trail. Implementations
// must tolerate failure; auditing never blocks the business operation.
type Auditor interface {
	Record(ctx context.Context, action string, doc *Document) error
}
