package count

import (
	"conteo/internal/core/id"
	"conteo/internal/core/ident"
)

// Catalog is the authoritative material/case list for one count document,
// as fetched from the ERP.
type Catalog struct {
	DocumentID      string
	Site            string
	StorageLocation string
	PostingDate     string
	ERPUser         string
	ReferenceDoc    string
	Materials       []Material // CatalogCases populated, Registered empty
}

// Reconcile merges the ERP catalog with the locally stored document, if any.
//
// The catalog is always the superset of what may be registered: it defines the
// material lines and their case sets, while the stored document only annotates
// them with registrations. Stored registrations are copied verbatim onto the
// matching material line; registrations for cases the catalog no longer lists
// are dropped from the merged view (accepted orphaning, see DESIGN.md).
//
// The returned document is a fresh caller-owned aggregate; only an explicit
// save writes it back.
func Reconcile(catalog Catalog, stored *Document) *Document {
	doc := &Document{
		ID:              id.New(),
		DocumentID:      ident.Normalize(catalog.DocumentID),
		Site:            catalog.Site,
		StorageLocation: catalog.StorageLocation,
		PostingDate:     catalog.PostingDate,
		ERPUser:         catalog.ERPUser,
		ReferenceDoc:    catalog.ReferenceDoc,
		Status:          StatusPending,
		IsNew:           true,
		Materials:       make([]Material, 0, len(catalog.Materials)),
	}

	if stored != nil {
		doc.ID = stored.ID
		doc.Status = stored.Status
		doc.IsNew = false
		doc.CreatedBy = stored.CreatedBy
		doc.CreatedAt = stored.CreatedAt
		doc.ModifiedBy = stored.ModifiedBy
		doc.ModifiedAt = stored.ModifiedAt
	}

	for i, cm := range catalog.Materials {
		line := Material{
			LineNo:          i + 1,
			MaterialCode:    cm.MaterialCode,
			Description:     cm.Description,
			NominalQuantity: cm.NominalQuantity,
			Unit:            cm.Unit,
			CatalogCases:    cm.CatalogCases,
		}

		if stored != nil {
			if sm := stored.FindMaterial(cm.MaterialCode); sm != nil {
				line.Registered = filterKnownCases(sm.Registered, cm.CatalogCases)
			}
		}

		doc.Materials = append(doc.Materials, line)
	}

	return doc
}

// filterKnownCases keeps only registrations whose case still exists in the
// catalog, preserving order.
func filterKnownCases(regs []Registration, catalog []CatalogCase) []Registration {
	if len(regs) == 0 {
		return nil
	}
	kept := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		for _, cc := range catalog {
			if ident.Equal(cc.CaseID, reg.CaseID) {
				kept = append(kept, reg)
				break
			}
		}
	}
	return kept
}
