package count

import (
	"context"
	"testing"
	"time"

	"conteo/internal/core/apperror"
	appctx "conteo/internal/core/context"
	"conteo/internal/core/ident"
	"conteo/internal/core/types"
)

// fakeRepo is an in-memory Repository with the same lookup and status
// semantics as the postgres implementation.
type fakeRepo struct {
	// docs is keyed by the document id exactly as persisted, which for
	// historical records may be zero-padded or whitespace-padded.
	docs map[string]*Document
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: make(map[string]*Document)}
}

func (r *fakeRepo) find(documentID string) (string, *Document) {
	norm := ident.Normalize(documentID)
	if doc, ok := r.docs[norm]; ok {
		return norm, doc
	}
	if doc, ok := r.docs[documentID]; ok {
		return documentID, doc
	}
	for key, doc := range r.docs {
		if ident.Equal(key, norm) {
			return key, doc
		}
	}
	return "", nil
}

func (r *fakeRepo) FindByNormalizedID(ctx context.Context, documentID string) (*Document, error) {
	if _, doc := r.find(documentID); doc != nil {
		cp := *doc
		return &cp, nil
	}
	return nil, apperror.NewNotFound("count document", documentID)
}

func (r *fakeRepo) Upsert(ctx context.Context, doc *Document, opts UpsertOptions) (*Document, error) {
	key, existing := r.find(doc.DocumentID)

	status := StatusPending
	if existing != nil {
		if existing.Status == StatusPosted && (opts.SetStatus == nil || *opts.SetStatus != StatusPosted) {
			return nil, apperror.NewDocumentFinalized(existing.DocumentID, string(existing.Status))
		}
		if existing.Status == StatusProcessed && opts.SetStatus == nil {
			return nil, apperror.NewDocumentFinalized(existing.DocumentID, string(existing.Status))
		}
		if opts.ExpectedModifiedAt != nil && !existing.ModifiedAt.Equal(*opts.ExpectedModifiedAt) {
			return nil, apperror.NewConcurrentModification("count document", existing.DocumentID)
		}
		status = existing.Status
	}
	if opts.SetStatus != nil {
		status = *opts.SetStatus
	}

	cp := *doc
	cp.Status = status
	if key == "" {
		key = ident.Normalize(doc.DocumentID)
	}
	r.docs[key] = &cp

	out := cp
	return &out, nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	result := ListResult{Limit: filter.Limit, Offset: filter.Offset}
	for _, doc := range r.docs {
		cp := *doc
		result.Items = append(result.Items, &cp)
	}
	result.TotalCount = int64(len(result.Items))
	return result, nil
}

// stubFetcher serves a fixed catalog, recording the raw id it was called with.
type stubFetcher struct {
	catalog Catalog
	err     error
	lastID  string
}

func (f *stubFetcher) FetchCatalog(ctx context.Context, rawDocumentID string) (Catalog, error) {
	f.lastID = rawDocumentID
	if f.err != nil {
		return Catalog{}, f.err
	}
	return f.catalog, nil
}

func newTestService() (*Service, *fakeRepo, *stubFetcher) {
	repo := newFakeRepo()
	fetcher := &stubFetcher{catalog: testCatalog()}
	return NewService(repo, fetcher, nil), repo, fetcher
}

func TestSearchNewDocument(t *testing.T) {
	svc, _, fetcher := newTestService()
	ctx := context.Background()

	doc, err := svc.Search(ctx, " 0004711 ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !doc.IsNew {
		t.Error("IsNew = false for document absent from store")
	}
	if fetcher.lastID != " 0004711 " {
		t.Errorf("fetcher called with %q, want the raw id passed through", fetcher.lastID)
	}
	if doc.DocumentID != "4711" {
		t.Errorf("DocumentID = %q, want normalized 4711", doc.DocumentID)
	}
}

func TestSearchCatalogUnavailable(t *testing.T) {
	svc, _, fetcher := newTestService()

	for _, fetchErr := range []error{ErrCatalogNotFound, ErrCatalogTransient} {
		fetcher.err = fetchErr
		_, err := svc.Search(context.Background(), "4711")
		if !apperror.IsCode(err, apperror.CodeCatalogUnavailable) {
			t.Errorf("Search with %v = %v, want CATALOG_UNAVAILABLE", fetchErr, err)
		}
	}
}

func TestSearchRejectsEmptyID(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Search(context.Background(), "  000 "); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Errorf("Search with all-zero id = %v, want VALIDATION_ERROR", err)
	}
}

func TestRegisterThenSearchRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	reg, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("7"), ExceptionCode: "00",
	})
	if err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}
	if reg.QuantityDelta.String() != "-3" || reg.Flag != FlagMismatched {
		t.Errorf("delta/flag = %s/%s, want -3/%s", reg.QuantityDelta, reg.Flag, FlagMismatched)
	}

	doc, err := svc.Search(ctx, "4711")
	if err != nil {
		t.Fatalf("Search after register: %v", err)
	}
	if doc.IsNew {
		t.Error("IsNew = true after persisting a registration")
	}
	m := doc.FindMaterial("MAT-100")
	if len(m.Registered) != 1 || m.Registered[0].CaseID != "007" {
		t.Fatalf("registered = %+v, want the 007 registration", m.Registered)
	}
	checkPartition(t, m)
}

func TestSearchResolvesAllIDRepresentations(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	// Historical record persisted under the padded form.
	old := NewDocument("4711")
	old.DocumentID = "0004711"
	old.Materials = []Material{
		{
			MaterialCode: "MAT-100",
			Registered: []Registration{
				{CaseID: "0008", Location: "A-2", EnteredQuantity: types.MustQuantity("12"), State: StateRegistered, Flag: FlagMatched},
			},
		},
	}
	repo.docs["0004711"] = old

	for _, rawID := range []string{"4711", " 0004711 ", "0004711"} {
		doc, err := svc.Search(ctx, rawID)
		if err != nil {
			t.Fatalf("Search(%q): %v", rawID, err)
		}
		if doc.IsNew {
			t.Errorf("Search(%q) missed the stored record", rawID)
		}
		m := doc.FindMaterial("MAT-100")
		if m == nil || len(m.Registered) != 1 {
			t.Errorf("Search(%q) lost the stored registration", rawID)
		}
	}
}

func TestEditAndDeleteCase(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("7"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}

	edited, err := svc.EditCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	})
	if err != nil {
		t.Fatalf("EditCase: %v", err)
	}
	if edited.Flag != FlagMatched {
		t.Errorf("edited flag = %s, want %s", edited.Flag, FlagMatched)
	}

	if err := svc.DeleteCase(ctx, "4711", "MAT-100", "007"); err != nil {
		t.Fatalf("DeleteCase: %v", err)
	}

	doc, err := svc.Search(ctx, "4711")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if doc.HasRegistrations() {
		t.Error("registrations survived delete")
	}
}

func TestProcessLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Processing an empty count is rejected and the status stays pending.
	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}
	if err := svc.DeleteCase(ctx, "4711", "MAT-100", "007"); err != nil {
		t.Fatalf("DeleteCase: %v", err)
	}
	if _, err := svc.Process(ctx, "4711"); !apperror.IsCode(err, apperror.CodeEmptyCount) {
		t.Fatalf("Process empty = %v, want EMPTY_COUNT", err)
	}
	doc, _ := svc.Search(ctx, "4711")
	if doc.Status != StatusPending {
		t.Errorf("status = %s after rejected process, want pending", doc.Status)
	}

	// With content, process succeeds and freezes the document.
	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}
	processed, err := svc.Process(ctx, "4711")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if processed.Status != StatusProcessed {
		t.Errorf("status = %s, want processed", processed.Status)
	}

	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "0008", Location: "A-2", Quantity: types.MustQuantity("12"),
	}); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("register after process = %v, want DOCUMENT_FINALIZED", err)
	}
	if _, err := svc.EditCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("1"),
	}); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("edit after process = %v, want DOCUMENT_FINALIZED", err)
	}
	if err := svc.DeleteCase(ctx, "4711", "MAT-100", "007"); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("delete after process = %v, want DOCUMENT_FINALIZED", err)
	}

	// Registered set is untouched by the rejected mutations.
	after, _ := svc.Search(ctx, "4711")
	if m := after.FindMaterial("MAT-100"); len(m.Registered) != 1 {
		t.Errorf("registered = %d after rejected mutations, want 1", len(m.Registered))
	}
}

func TestPostTerminal(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}
	if _, err := svc.Process(ctx, "4711"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	posted, err := svc.Post(ctx, "4711")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if posted.Status != StatusPosted {
		t.Errorf("status = %s, want posted", posted.Status)
	}

	if _, err := svc.Process(ctx, "4711"); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("process after post = %v, want DOCUMENT_FINALIZED", err)
	}
}

func TestSaveRevalidatesAgainstCatalog(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	payload := NewDocument("4711")
	payload.Materials = []Material{
		{
			MaterialCode: "MAT-100",
			Registered: []Registration{
				// Stale delta: entered 7 against nominal 10 must recompute to -3.
				{CaseID: "007", Location: "A-1", EnteredQuantity: types.MustQuantity("7"), State: StateRegistered, QuantityDelta: types.MustQuantity("0"), Flag: FlagMatched},
				// Case unknown to the catalog is dropped.
				{CaseID: "999", Location: "Z-9", EnteredQuantity: types.MustQuantity("1"), State: StateRegistered},
			},
		},
	}

	saved, err := svc.Save(ctx, payload)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Status != StatusPending {
		t.Errorf("status = %s after save, want pending", saved.Status)
	}

	m := saved.FindMaterial("MAT-100")
	if len(m.Registered) != 1 {
		t.Fatalf("registered = %+v, want only the catalog-backed 007", m.Registered)
	}
	if m.Registered[0].QuantityDelta.String() != "-3" || m.Registered[0].Flag != FlagMismatched {
		t.Errorf("delta/flag = %s/%s, want recomputed -3/%s",
			m.Registered[0].QuantityDelta, m.Registered[0].Flag, FlagMismatched)
	}
}

func TestSaveRejectedWhenProcessed(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}
	if _, err := svc.Process(ctx, "4711"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	payload := NewDocument("4711")
	if _, err := svc.Save(ctx, payload); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("Save on processed = %v, want DOCUMENT_FINALIZED", err)
	}
}

func TestSaveConcurrentModification(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}

	current, err := svc.Search(ctx, "4711")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// A payload echoing an outdated revision loses the race.
	stale := NewDocument("4711")
	stale.ModifiedAt = current.ModifiedAt.Add(-time.Minute)
	if _, err := svc.Save(ctx, stale); !apperror.IsConcurrentModification(err) {
		t.Errorf("Save with stale modifiedAt = %v, want CONCURRENT_MODIFICATION", err)
	}

	fresh := NewDocument("4711")
	fresh.ModifiedAt = current.ModifiedAt
	if _, err := svc.Save(ctx, fresh); err != nil {
		t.Fatalf("Save with current modifiedAt: %v", err)
	}
}

func TestMutationsRequireSiteAccess(t *testing.T) {
	svc, _, _ := newTestService()

	// The catalog document belongs to P001; the operator is scoped to P999.
	foreign := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u1", Username: "mlopez", Sites: []string{"P999"},
	})
	in := CaseInput{CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10")}

	if _, err := svc.RegisterCase(foreign, "4711", "MAT-100", in); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("register from foreign site = %v, want FORBIDDEN", err)
	}
	if _, err := svc.Save(foreign, NewDocument("4711")); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("save from foreign site = %v, want FORBIDDEN", err)
	}
	if _, err := svc.Process(foreign, "4711"); !apperror.IsCode(err, apperror.CodeForbidden) {
		t.Errorf("process from foreign site = %v, want FORBIDDEN", err)
	}

	// Matching site and admin both pass; an empty site list means all sites.
	for name, user := range map[string]*appctx.UserContext{
		"own site":  {UserID: "u2", Username: "jgarcia", Sites: []string{"P001"}},
		"admin":     {UserID: "u3", Username: "root", IsAdmin: true, Sites: []string{"P999"}},
		"all sites": {UserID: "u4", Username: "batch"},
	} {
		ctx := appctx.WithUser(context.Background(), user)
		if _, err := svc.RegisterCase(ctx, "4711", "MAT-100", in); err != nil {
			t.Errorf("%s: RegisterCase: %v", name, err)
		}
		if err := svc.DeleteCase(ctx, "4711", "MAT-100", "007"); err != nil {
			t.Errorf("%s: DeleteCase: %v", name, err)
		}
	}
}
