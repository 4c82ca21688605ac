package count

import (
	"context"

	"conteo/internal/core/apperror"
	appctx "conteo/internal/core/context"
	"conteo/internal/core/ident"
	"conteo/pkg/logger"
)

// Audit action names.
const (
	AuditSave    = "save"
	AuditProcess = "process"
	AuditPost    = "post"
)

// Service provides business operations for count documents: search merges the
// ERP catalog with the local store, the case operations drive the registration
// ledger, and process/post advance the status machine.
type Service struct {
	repo    Repository
	fetcher CatalogFetcher
	auditor Auditor // optional
}

// NewService creates a new count service.
func NewService(repo Repository, fetcher CatalogFetcher, auditor Auditor) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		auditor: auditor,
	}
}

// Search fetches the ERP catalog and the stored document for the same
// identifier and reconciles them. The two reads are independent, so they run
// concurrently; the catalog fetch is the long pole.
func (s *Service) Search(ctx context.Context, rawID string) (*Document, error) {
	if ident.Normalize(rawID) == "" {
		return nil, apperror.NewValidation("document id is required")
	}

	type lookup struct {
		doc *Document
		err error
	}
	stored := make(chan lookup, 1)
	go func() {
		doc, err := s.repo.FindByNormalizedID(ctx, rawID)
		stored <- lookup{doc, err}
	}()

	catalog, fetchErr := s.fetcher.FetchCatalog(ctx, rawID)
	local := <-stored

	if fetchErr != nil {
		// A local-only record with no catalog backing is not actionable:
		// validation requires the catalog.
		return nil, apperror.NewCatalogUnavailable(rawID, fetchErr)
	}

	if local.err != nil {
		if !apperror.IsNotFound(local.err) {
			return nil, local.err
		}
		local.doc = nil
	}

	doc := Reconcile(catalog, local.doc)
	logger.Debug(ctx, "count reconciled",
		"document_id", doc.DocumentID,
		"materials", len(doc.Materials),
		"new", doc.IsNew,
	)
	return doc, nil
}

// checkSiteAccess rejects mutations by operators scoped to other warehouse
// sites. Calls without an authenticated user are not restricted: the HTTP
// layer always sets the user, so those are internal callers.
func checkSiteAccess(ctx context.Context, site string) error {
	if appctx.GetUser(ctx) == nil || appctx.HasSiteAccess(ctx, site) {
		return nil
	}
	return apperror.NewForbidden("operator has no access to warehouse site").
		WithDetail("werks", site)
}

// RegisterCase validates and commits one case registration, then persists the
// whole aggregate. Returns the created registration with its discrepancy.
func (s *Service) RegisterCase(ctx context.Context, rawID, materialCode string, in CaseInput) (*Registration, error) {
	doc, err := s.Search(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := checkSiteAccess(ctx, doc.Site); err != nil {
		return nil, err
	}

	reg, err := doc.RegisterCase(materialCode, in)
	if err != nil {
		return nil, err
	}

	if _, err := s.persist(ctx, doc, UpsertOptions{}); err != nil {
		return nil, err
	}

	logger.Info(ctx, "case registered",
		"document_id", doc.DocumentID,
		"material", materialCode,
		"case", reg.CaseID,
		"delta", reg.QuantityDelta,
	)
	return reg, nil
}

// EditCase replaces an existing registration in place and persists.
func (s *Service) EditCase(ctx context.Context, rawID, materialCode string, in CaseInput) (*Registration, error) {
	doc, err := s.Search(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := checkSiteAccess(ctx, doc.Site); err != nil {
		return nil, err
	}

	reg, err := doc.EditCase(materialCode, in)
	if err != nil {
		return nil, err
	}

	if _, err := s.persist(ctx, doc, UpsertOptions{}); err != nil {
		return nil, err
	}

	logger.Info(ctx, "case registration edited",
		"document_id", doc.DocumentID,
		"material", materialCode,
		"case", reg.CaseID,
	)
	return reg, nil
}

// DeleteCase removes a registration; the case reverts to pending.
func (s *Service) DeleteCase(ctx context.Context, rawID, materialCode, caseID string) error {
	doc, err := s.Search(ctx, rawID)
	if err != nil {
		return err
	}
	if err := checkSiteAccess(ctx, doc.Site); err != nil {
		return err
	}

	if err := doc.UnregisterCase(materialCode, caseID); err != nil {
		return err
	}

	if _, err := s.persist(ctx, doc, UpsertOptions{}); err != nil {
		return err
	}

	logger.Info(ctx, "case registration deleted",
		"document_id", doc.DocumentID,
		"material", materialCode,
		"case", caseID,
	)
	return nil
}

// Save persists the caller-assembled ledger state. The status is preserved by
// the store; registrations are re-validated against a fresh catalog so that a
// stale payload can neither register unknown cases nor carry wrong deltas.
func (s *Service) Save(ctx context.Context, doc *Document) (*Document, error) {
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	catalog, err := s.fetcher.FetchCatalog(ctx, doc.DocumentID)
	if err != nil {
		return nil, apperror.NewCatalogUnavailable(doc.DocumentID, err)
	}

	merged := Reconcile(catalog, doc)
	merged.ID = doc.ID
	if err := checkSiteAccess(ctx, merged.Site); err != nil {
		return nil, err
	}
	recomputeDiscrepancies(merged)

	// The payload echoes the modified_at it was loaded with; a zero value means
	// the client never saw a stored revision, so there is nothing to guard.
	opts := UpsertOptions{}
	if !merged.ModifiedAt.IsZero() {
		expected := merged.ModifiedAt
		opts.ExpectedModifiedAt = &expected
	}

	saved, err := s.persist(ctx, merged, opts)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count document saved", "document_id", saved.DocumentID)
	return saved, nil
}

// Process transitions the document to processed, freezing registrations.
// Requires at least one registered case anywhere in the document.
func (s *Service) Process(ctx context.Context, rawID string) (*Document, error) {
	doc, err := s.Search(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := checkSiteAccess(ctx, doc.Site); err != nil {
		return nil, err
	}

	if err := doc.Process(); err != nil {
		return nil, err
	}

	status := StatusProcessed
	saved, err := s.persist(ctx, doc, UpsertOptions{SetStatus: &status})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, AuditProcess, saved)

	logger.Info(ctx, "count document processed", "document_id", saved.DocumentID)
	return saved, nil
}

// Post records the externally-driven accounting confirmation. Privileged: the
// only operation still allowed to touch a processed document.
func (s *Service) Post(ctx context.Context, rawID string) (*Document, error) {
	doc, err := s.repo.FindByNormalizedID(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if err := checkSiteAccess(ctx, doc.Site); err != nil {
		return nil, err
	}

	doc.MarkPosted()
	doc.Touch(appctx.GetUsername(ctx))

	status := StatusPosted
	saved, err := s.repo.Upsert(ctx, doc, UpsertOptions{SetStatus: &status})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, AuditPost, saved)

	logger.Info(ctx, "count document posted", "document_id", saved.DocumentID)
	return saved, nil
}

// List retrieves stored count documents with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	return s.repo.List(ctx, filter)
}

// persist writes the aggregate through the repository, stamping the operator.
func (s *Service) persist(ctx context.Context, doc *Document, opts UpsertOptions) (*Document, error) {
	doc.Touch(appctx.GetUsername(ctx))

	saved, err := s.repo.Upsert(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	if opts.SetStatus == nil {
		s.audit(ctx, AuditSave, saved)
	}
	return saved, nil
}

// audit records the action without affecting the business operation.
func (s *Service) audit(ctx context.Context, action string, doc *Document) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, action, doc); err != nil {
		logger.Warn(ctx, "audit record failed",
			"action", action,
			"document_id", doc.DocumentID,
			"error", err,
		)
	}
}

// recomputeDiscrepancies refreshes delta, flag and catalog-owned fields of
// every registration against the current catalog cases.
func recomputeDiscrepancies(doc *Document) {
	for i := range doc.Materials {
		m := &doc.Materials[i]
		for j, reg := range m.Registered {
			cat, ok := m.FindCatalogCase(reg.CaseID)
			if !ok {
				continue // dropped by Reconcile already
			}
			m.Registered[j] = newRegistration(cat, CaseInput{
				CaseID:        reg.CaseID,
				Location:      reg.Location,
				Quantity:      reg.EnteredQuantity,
				ExceptionCode: reg.ExceptionCode,
			})
		}
	}
}
