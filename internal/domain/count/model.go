// Package count provides the inventory-count document (Conteo): reconciliation
// of the ERP case catalog against locally registered counts, case registration
// with catalog-backed validation, and the document status machine.
package count

import (
	"context"
	"time"

	"conteo/internal/core/apperror"
	"conteo/internal/core/id"
	"conteo/internal/core/ident"
	"conteo/internal/core/types"
)

// Status represents the lifecycle state of a count document.
type Status string

const (
	// StatusPending allows registration edits and content saves.
	StatusPending Status = "pending"
	// StatusProcessed freezes registrations; set by the process transition.
	StatusProcessed Status = "processed"
	// StatusPosted is terminal, driven by external accounting confirmation.
	StatusPosted Status = "posted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusPosted:
		return true
	}
	return false
}

// Finalized reports whether registrations are frozen.
func (s Status) Finalized() bool {
	return s == StatusProcessed || s == StatusPosted
}

// Document represents one inventory-count exercise.
//
// DocumentID is stored normalized (ident.Normalize); the ERP may present it
// zero-padded or whitespace-padded, so normalization is applied at every lookup
// boundary, never assumed.
type Document struct {
	ID              id.ID  `db:"id" json:"-"`
	DocumentID      string `db:"document_id" json:"documentId"`
	Site            string `db:"site" json:"site"`                        // WERKS
	StorageLocation string `db:"storage_location" json:"storageLocation"` // LGORT
	PostingDate     string `db:"posting_date" json:"postingDate"`         // BLDAT, opaque to the core
	ERPUser         string `db:"erp_user" json:"erpUser"`                 // USNAM
	ReferenceDoc    string `db:"reference_doc" json:"referenceDoc"`       // XBLNI
	Status          Status `db:"status" json:"status"`

	Materials []Material `db:"-" json:"materials"`

	CreatedBy  string    `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	ModifiedBy string    `db:"modified_by" json:"modifiedBy"`
	ModifiedAt time.Time `db:"modified_at" json:"modifiedAt"`

	// IsNew is true when reconciliation found no stored record for this id.
	// Not persisted.
	IsNew bool `db:"-" json:"isNew"`
}

// Material is one material line within a count document.
type Material struct {
	LineNo          int            `db:"line_no" json:"lineNo"`
	MaterialCode    string         `db:"material_code" json:"materialCode"` // MATNR
	Description     string         `db:"description" json:"description"`    // MAKTX
	NominalQuantity types.Quantity `db:"nominal_quantity" json:"nominalQuantity"`
	Unit            string         `db:"unit" json:"unit"` // MEINS

	// CatalogCases is the authoritative case list from the ERP. Read-only
	// ground truth, refetched on every reconciliation, never persisted.
	CatalogCases []CatalogCase `db:"-" json:"catalogCases"`

	// Registered holds the operator's committed case registrations.
	Registered []Registration `db:"-" json:"registeredCases"`
}

// CatalogCase is one physical unit as known by the ERP.
type CatalogCase struct {
	CaseID          string         `json:"caseId"`
	Site            string         `json:"site"`
	StorageLocation string         `json:"storageLocation"`
	Location        string         `json:"location"` // UBICACION
	NominalQuantity types.Quantity `json:"nominalQuantity"`
	ExceptionCode   string         `json:"exceptionCode"`
}

// DiscrepancyFlag marks whether an entered quantity matched the catalog.
type DiscrepancyFlag string

const (
	FlagMatched    DiscrepancyFlag = "matched"
	FlagMismatched DiscrepancyFlag = "mismatched"
)

// StateRegistered is the only registration state this workflow produces.
const StateRegistered = "registered"

// Registration is an operator's claim about a case: the location and quantity
// actually observed, with the discrepancy against the catalog precomputed.
type Registration struct {
	CaseID          string          `db:"case_id" json:"caseId"`
	Location        string          `db:"location" json:"location"`
	EnteredQuantity types.Quantity  `db:"entered_quantity" json:"enteredQuantity"`
	ExceptionCode   string          `db:"exception_code" json:"exceptionCode"`
	State           string          `db:"state" json:"state"`
	Site            string          `db:"site" json:"site"`
	StorageLocation string          `db:"storage_location" json:"storageLocation"`
	QuantityDelta   types.Quantity  `db:"quantity_delta" json:"quantityDelta"`
	Flag            DiscrepancyFlag `db:"flag" json:"flag"`
}

// NewDocument creates a pending count document with a normalized identifier.
func NewDocument(documentID string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:         id.New(),
		DocumentID: ident.Normalize(documentID),
		Status:     StatusPending,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// Validate implements basic document validation.
func (d *Document) Validate(ctx context.Context) error {
	if ident.Normalize(d.DocumentID) == "" {
		return apperror.NewValidation("document id is required").
			WithDetail("field", "documentId")
	}
	if !d.Status.Valid() {
		return apperror.NewValidation("unknown document status").
			WithDetail("status", string(d.Status))
	}
	return nil
}

// CanModify checks if registrations may still be edited. Re-checked on every
// mutating ledger call, not just at load time, since the status may change
// during a long-lived editing session.
func (d *Document) CanModify() error {
	if d.Status.Finalized() {
		return apperror.NewDocumentFinalized(d.DocumentID, string(d.Status))
	}
	return nil
}

// HasRegistrations reports whether any material carries a registered case.
func (d *Document) HasRegistrations() bool {
	for i := range d.Materials {
		if len(d.Materials[i].Registered) > 0 {
			return true
		}
	}
	return false
}

// Process transitions pending → processed. Requires at least one registered
// case anywhere in the document. A still-unposted processed document may be
// re-processed (the snapshot is replaced); a posted one may not.
func (d *Document) Process() error {
	if d.Status == StatusPosted {
		return apperror.NewDocumentFinalized(d.DocumentID, string(d.Status))
	}
	if !d.HasRegistrations() {
		return apperror.NewBusinessRule(
			apperror.CodeEmptyCount,
			"Count document has no registered cases to process",
		).WithDetail("document_id", d.DocumentID)
	}
	d.Status = StatusProcessed
	return nil
}

// MarkPosted records the externally-driven accounting confirmation. Terminal.
func (d *Document) MarkPosted() {
	d.Status = StatusPosted
}

// Touch bumps the modification audit fields.
func (d *Document) Touch(user string) {
	d.ModifiedBy = user
	d.ModifiedAt = time.Now().UTC()
}

// FindMaterial returns the material line with the given code, or nil.
// Material codes match exactly; only document and case ids are normalized.
func (d *Document) FindMaterial(materialCode string) *Material {
	for i := range d.Materials {
		if d.Materials[i].MaterialCode == materialCode {
			return &d.Materials[i]
		}
	}
	return nil
}

// Completed reports whether every catalog case of the material is registered.
func (m *Material) Completed() bool {
	return len(m.CatalogCases) > 0 && len(m.Pending()) == 0
}

// Pending derives the cases still to register: the catalog minus those whose
// normalized case id matches a registration. Together with Registered it
// partitions CatalogCases with no overlap and no omission.
func (m *Material) Pending() []CatalogCase {
	pending := make([]CatalogCase, 0, len(m.CatalogCases))
	for _, cc := range m.CatalogCases {
		if m.findRegistration(cc.CaseID) < 0 {
			pending = append(pending, cc)
		}
	}
	return pending
}

// FindCatalogCase looks up a case in the authoritative catalog by normalized id.
func (m *Material) FindCatalogCase(caseID string) (CatalogCase, bool) {
	for _, cc := range m.CatalogCases {
		if ident.Equal(cc.CaseID, caseID) {
			return cc, true
		}
	}
	return CatalogCase{}, false
}

// findRegistration returns the index of the registration matching the
// normalized case id, or -1.
func (m *Material) findRegistration(caseID string) int {
	for i := range m.Registered {
		if ident.Equal(m.Registered[i].CaseID, caseID) {
			return i
		}
	}
	return -1
}
