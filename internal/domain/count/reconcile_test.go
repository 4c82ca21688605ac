package count

import (
	"testing"

	"conteo/internal/core/types"
)

func testCatalog() Catalog {
	return Catalog{
		DocumentID:      "0004711",
		Site:            "P001",
		StorageLocation: "0001",
		PostingDate:     "2026-08-30",
		ERPUser:         "WMSBATCH",
		ReferenceDoc:    "REF-1",
		Materials: []Material{
			{
				MaterialCode:    "MAT-100",
				Description:     "Pallet widget",
				NominalQuantity: types.MustQuantity("30"),
				Unit:            "EA",
				CatalogCases: []CatalogCase{
					{CaseID: "007", Location: "A-1", NominalQuantity: types.MustQuantity("10")},
					{CaseID: "0008", Location: "A-2", NominalQuantity: types.MustQuantity("12")},
				},
			},
			{
				MaterialCode:    "MAT-200",
				Description:     "Loose crate",
				NominalQuantity: types.MustQuantity("5"),
				Unit:            "EA",
				CatalogCases: []CatalogCase{
					{CaseID: "300", Location: "C-3", NominalQuantity: types.MustQuantity("5")},
				},
			},
		},
	}
}

func TestReconcileWithoutStoredDocument(t *testing.T) {
	doc := Reconcile(testCatalog(), nil)

	if !doc.IsNew {
		t.Error("IsNew = false for unstored document")
	}
	if doc.Status != StatusPending {
		t.Errorf("Status = %s, want %s", doc.Status, StatusPending)
	}
	if doc.DocumentID != "4711" {
		t.Errorf("DocumentID = %q, want normalized %q", doc.DocumentID, "4711")
	}
	if len(doc.Materials) != 2 {
		t.Fatalf("materials = %d, want 2", len(doc.Materials))
	}

	for _, m := range doc.Materials {
		if len(m.Registered) != 0 {
			t.Errorf("material %s starts with %d registrations, want 0", m.MaterialCode, len(m.Registered))
		}
		if got, want := len(m.Pending()), len(m.CatalogCases); got != want {
			t.Errorf("material %s pending = %d, want all %d catalog cases", m.MaterialCode, got, want)
		}
	}
}

func TestReconcileCopiesStoredRegistrations(t *testing.T) {
	stored := NewDocument("4711")
	stored.Status = StatusPending
	stored.CreatedBy = "maria"
	stored.Materials = []Material{
		{
			MaterialCode: "MAT-100",
			Registered: []Registration{
				{CaseID: "007", Location: "A-1", EnteredQuantity: types.MustQuantity("7"), State: StateRegistered, QuantityDelta: types.MustQuantity("-3"), Flag: FlagMismatched},
			},
		},
	}

	doc := Reconcile(testCatalog(), stored)

	if doc.IsNew {
		t.Error("IsNew = true for stored document")
	}
	if doc.ID != stored.ID {
		t.Error("reconciled document lost the stored aggregate id")
	}
	if doc.CreatedBy != "maria" {
		t.Errorf("CreatedBy = %q, want maria", doc.CreatedBy)
	}

	m := doc.FindMaterial("MAT-100")
	if m == nil {
		t.Fatal("MAT-100 missing from reconciled view")
	}
	if len(m.Registered) != 1 || m.Registered[0].CaseID != "007" {
		t.Fatalf("registered = %+v, want the stored 007 registration", m.Registered)
	}
	if m.Registered[0].QuantityDelta.String() != "-3" {
		t.Errorf("stored delta not copied verbatim: %s", m.Registered[0].QuantityDelta)
	}

	// Pending excludes the registered case by normalized id.
	for _, cc := range m.Pending() {
		if cc.CaseID == "007" {
			t.Error("registered case 007 still listed as pending")
		}
	}
	checkPartition(t, m)
}

func TestReconcileMatchesRegistrationsAcrossIDForms(t *testing.T) {
	// Stored registration was persisted zero-padded; catalog lists the bare id.
	stored := NewDocument("4711")
	stored.Materials = []Material{
		{
			MaterialCode: "MAT-100",
			Registered: []Registration{
				{CaseID: "0000007", EnteredQuantity: types.MustQuantity("10"), State: StateRegistered, Flag: FlagMatched},
			},
		},
	}

	doc := Reconcile(testCatalog(), stored)
	m := doc.FindMaterial("MAT-100")
	if len(m.Registered) != 1 {
		t.Fatalf("registered = %d, want 1", len(m.Registered))
	}
	if got := len(m.Pending()); got != 1 {
		t.Errorf("pending = %d, want 1 (only 0008)", got)
	}
}

func TestReconcileDropsOrphanedRegistrations(t *testing.T) {
	// The ERP catalog no longer lists case 999; its registration is orphaned
	// and dropped from the merged view.
	stored := NewDocument("4711")
	stored.Materials = []Material{
		{
			MaterialCode: "MAT-100",
			Registered: []Registration{
				{CaseID: "999", State: StateRegistered},
				{CaseID: "007", State: StateRegistered},
			},
		},
		{
			// Material the catalog no longer lists at all.
			MaterialCode: "MAT-GONE",
			Registered:   []Registration{{CaseID: "1", State: StateRegistered}},
		},
	}

	doc := Reconcile(testCatalog(), stored)

	m := doc.FindMaterial("MAT-100")
	if len(m.Registered) != 1 || m.Registered[0].CaseID != "007" {
		t.Errorf("registered = %+v, want only 007", m.Registered)
	}
	if doc.FindMaterial("MAT-GONE") != nil {
		t.Error("material absent from catalog survived reconciliation")
	}
}

func TestReconcilePreservesStoredStatus(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusProcessed, StatusPosted} {
		stored := NewDocument("4711")
		stored.Status = status

		doc := Reconcile(testCatalog(), stored)
		if doc.Status != status {
			t.Errorf("Status = %s, want stored %s", doc.Status, status)
		}
	}
}

func TestReconcileEmptyCatalog(t *testing.T) {
	// Absence of materials is an empty catalog, not an error.
	doc := Reconcile(Catalog{DocumentID: "4711"}, nil)
	if len(doc.Materials) != 0 {
		t.Errorf("materials = %d, want 0", len(doc.Materials))
	}
	if doc.HasRegistrations() {
		t.Error("empty document claims registrations")
	}
}
