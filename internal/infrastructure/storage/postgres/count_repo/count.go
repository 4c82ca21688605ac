// Package count_repo implements persistence for count documents.
package count_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"conteo/internal/core/apperror"
	"conteo/internal/core/id"
	"conteo/internal/core/ident"
	"conteo/internal/domain/count"
	"conteo/internal/infrastructure/storage/postgres"
)

const (
	documentsTable = "count_documents"
	materialsTable = "count_materials"
	casesTable     = "count_cases"
)

var documentColumns = []string{
	"id", "document_id", "site", "storage_location", "posting_date",
	"erp_user", "reference_doc", "status",
	"created_by", "created_at", "modified_by", "modified_at",
}

// CountRepo implements count.Repository on PostgreSQL. The aggregate is
// written whole: every upsert replaces the material lines and registrations
// of the stored document inside one transaction.
type CountRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ count.Repository = (*CountRepo)(nil)

// NewCountRepo creates a new count document repository.
func NewCountRepo(txManager *postgres.TxManager) *CountRepo {
	return &CountRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CountRepo) FindByNormalizedID(ctx context.Context, documentID string) (*count.Document, error) {
	doc, err := r.findHeader(ctx, documentID, false)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// findHeader resolves the stored header. Historical rows may have been
// persisted under the normalized id, the raw id, or a zero-padded variant, so
// the lookup runs up to three stages and returns the first hit.
func (r *CountRepo) findHeader(ctx context.Context, documentID string, forUpdate bool) (*count.Document, error) {
	norm := ident.Normalize(documentID)

	conds := []squirrel.Sqlizer{squirrel.Eq{"document_id": norm}}
	if documentID != norm {
		conds = append(conds, squirrel.Eq{"document_id": documentID})
	}
	conds = append(conds, squirrel.Expr("document_id ~ ?", ident.ZeroPadPattern(norm)))

	querier := r.txManager.GetQuerier(ctx)
	for _, cond := range conds {
		q := r.builder.
			Select(documentColumns...).
			From(documentsTable).
			Where(cond).
			Limit(1)
		if forUpdate {
			q = q.Suffix("FOR UPDATE")
		}

		sql, args, err := q.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build header query: %w", err)
		}

		var doc count.Document
		err = pgxscan.Get(ctx, querier, &doc, sql, args...)
		if err == nil {
			return &doc, nil
		}
		if !pgxscan.NotFound(err) {
			return nil, fmt.Errorf("get header: %w", err)
		}
	}

	return nil, apperror.NewNotFound("count document", norm)
}

func (r *CountRepo) loadLines(ctx context.Context, doc *count.Document) error {
	querier := r.txManager.GetQuerier(ctx)

	q := r.builder.
		Select("line_no", "material_code", "description", "nominal_quantity", "unit").
		From(materialsTable).
		Where(squirrel.Eq{"document_id": doc.ID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build materials query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &doc.Materials, sql, args...); err != nil {
		return fmt.Errorf("get materials: %w", err)
	}

	type caseRow struct {
		MaterialCode string `db:"material_code"`
		count.Registration
	}

	q = r.builder.
		Select(
			"material_code", "case_id", "location", "entered_quantity",
			"exception_code", "state", "site", "storage_location",
			"quantity_delta", "flag",
		).
		From(casesTable).
		Where(squirrel.Eq{"document_id": doc.ID}).
		OrderBy("material_code", "case_id")

	sql, args, err = q.ToSql()
	if err != nil {
		return fmt.Errorf("build cases query: %w", err)
	}

	var rows []caseRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return fmt.Errorf("get cases: %w", err)
	}

	for _, row := range rows {
		if m := doc.FindMaterial(row.MaterialCode); m != nil {
			m.Registered = append(m.Registered, row.Registration)
		}
	}

	return nil
}

func (r *CountRepo) Upsert(ctx context.Context, doc *count.Document, opts count.UpsertOptions) (*count.Document, error) {
	var saved *count.Document

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.findHeader(ctx, doc.DocumentID, true)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}

		status := count.StatusPending
		if existing != nil {
			if existing.Status == count.StatusPosted && (opts.SetStatus == nil || *opts.SetStatus != count.StatusPosted) {
				return apperror.NewDocumentFinalized(existing.DocumentID, string(existing.Status))
			}
			if existing.Status == count.StatusProcessed && opts.SetStatus == nil {
				return apperror.NewDocumentFinalized(existing.DocumentID, string(existing.Status))
			}
			if opts.ExpectedModifiedAt != nil && !existing.ModifiedAt.Equal(*opts.ExpectedModifiedAt) {
				return apperror.NewConcurrentModification("count document", existing.DocumentID)
			}
			status = existing.Status
		}
		if opts.SetStatus != nil {
			status = *opts.SetStatus
		}

		persisted := *doc
		persisted.Status = status
		persisted.IsNew = false

		if existing != nil {
			// Keep the stored identity and id form: rewriting the key would
			// break lookups by the representation it was first saved under.
			persisted.ID = existing.ID
			persisted.DocumentID = existing.DocumentID
			persisted.CreatedBy = existing.CreatedBy
			persisted.CreatedAt = existing.CreatedAt
			if err := r.updateHeader(ctx, &persisted); err != nil {
				return err
			}
		} else {
			if id.IsNil(persisted.ID) {
				persisted.ID = id.New()
			}
			persisted.DocumentID = ident.Normalize(persisted.DocumentID)
			if persisted.CreatedAt.IsZero() {
				persisted.CreatedAt = time.Now().UTC()
			}
			if persisted.CreatedBy == "" {
				persisted.CreatedBy = persisted.ModifiedBy
			}
			if err := r.insertHeader(ctx, &persisted); err != nil {
				return err
			}
		}

		if err := r.saveLines(ctx, &persisted); err != nil {
			return err
		}

		saved = &persisted
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (r *CountRepo) insertHeader(ctx context.Context, doc *count.Document) error {
	q := r.builder.
		Insert(documentsTable).
		Columns(documentColumns...).
		Values(
			doc.ID, doc.DocumentID, doc.Site, doc.StorageLocation, doc.PostingDate,
			doc.ERPUser, doc.ReferenceDoc, doc.Status,
			doc.CreatedBy, doc.CreatedAt, doc.ModifiedBy, doc.ModifiedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert header: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert header: %w", err)
	}
	return nil
}

func (r *CountRepo) updateHeader(ctx context.Context, doc *count.Document) error {
	q := r.builder.
		Update(documentsTable).
		Set("site", doc.Site).
		Set("storage_location", doc.StorageLocation).
		Set("posting_date", doc.PostingDate).
		Set("erp_user", doc.ERPUser).
		Set("reference_doc", doc.ReferenceDoc).
		Set("status", doc.Status).
		Set("modified_by", doc.ModifiedBy).
		Set("modified_at", doc.ModifiedAt).
		Where(squirrel.Eq{"id": doc.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update header: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update header: %w", err)
	}
	return nil
}

// saveLines replaces the stored material lines and case registrations.
// Catalog cases are deliberately not written: the ERP owns them and they are
// refetched on every reconciliation.
func (r *CountRepo) saveLines(ctx context.Context, doc *count.Document) error {
	querier := r.txManager.GetQuerier(ctx)

	for _, table := range []string{casesTable, materialsTable} {
		if _, err := querier.Exec(ctx, "DELETE FROM "+table+" WHERE document_id = $1", doc.ID); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	if len(doc.Materials) == 0 {
		return nil
	}

	mq := r.builder.
		Insert(materialsTable).
		Columns("document_id", "line_no", "material_code", "description", "nominal_quantity", "unit")

	hasCases := false
	for _, m := range doc.Materials {
		mq = mq.Values(doc.ID, m.LineNo, m.MaterialCode, m.Description, m.NominalQuantity, m.Unit)
		if len(m.Registered) > 0 {
			hasCases = true
		}
	}

	sql, args, err := mq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert materials: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert materials: %w", err)
	}

	if !hasCases {
		return nil
	}

	cq := r.builder.
		Insert(casesTable).
		Columns(
			"document_id", "material_code", "case_id", "location",
			"entered_quantity", "exception_code", "state",
			"site", "storage_location", "quantity_delta", "flag",
		)

	for _, m := range doc.Materials {
		for _, reg := range m.Registered {
			cq = cq.Values(
				doc.ID, m.MaterialCode, reg.CaseID, reg.Location,
				reg.EnteredQuantity, reg.ExceptionCode, reg.State,
				reg.Site, reg.StorageLocation, reg.QuantityDelta, reg.Flag,
			)
		}
	}

	sql, args, err = cq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert cases: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert cases: %w", err)
	}

	return nil
}

func (r *CountRepo) List(ctx context.Context, filter count.ListFilter) (count.ListResult, error) {
	result := count.ListResult{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.builder.
		Select(documentColumns...).
		From(documentsTable)

	if filter.Site != "" {
		q = q.Where(squirrel.Eq{"site": filter.Site})
	}

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}

	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"modified_at": *filter.DateFrom})
	}

	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"modified_at": *filter.DateTo})
	}

	if filter.Search != "" {
		searchPattern := "%" + ident.Normalize(filter.Search) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"document_id": searchPattern},
			squirrel.ILike{"reference_doc": searchPattern},
		})
	}

	countQ := r.builder.Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy := "modified_at DESC"
	if filter.OrderBy != "" {
		orderBy = filter.OrderBy
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("select: %w", err)
	}

	return result, nil
}
