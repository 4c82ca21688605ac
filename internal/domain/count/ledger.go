package count

import (
	"conteo/internal/core/apperror"
	"conteo/internal/core/types"
)

// CaseInput carries the operator-entered fields of one case registration.
type CaseInput struct {
	CaseID        string
	Location      string
	Quantity      types.Quantity
	ExceptionCode string
}

// RegisterCase validates the input against the catalog and appends a new
// registration. The case must exist in the material's catalog, the entered
// location must equal the catalog location exactly (locations are never
// normalized), and the case must not already be registered.
func (d *Document) RegisterCase(materialCode string, in CaseInput) (*Registration, error) {
	m, cat, err := d.resolveCase(materialCode, in)
	if err != nil {
		return nil, err
	}

	if m.findRegistration(in.CaseID) >= 0 {
		return nil, apperror.NewAlreadyRegistered(in.CaseID)
	}

	reg := newRegistration(cat, in)
	m.Registered = append(m.Registered, reg)
	return &m.Registered[len(m.Registered)-1], nil
}

// EditCase replaces an existing registration in place. Same validations as
// RegisterCase, but the case must already be registered; the ledger never
// infers register-vs-edit intent from the input. Idempotent.
func (d *Document) EditCase(materialCode string, in CaseInput) (*Registration, error) {
	m, cat, err := d.resolveCase(materialCode, in)
	if err != nil {
		return nil, err
	}

	idx := m.findRegistration(in.CaseID)
	if idx < 0 {
		return nil, apperror.NewCaseNotRegistered(in.CaseID)
	}

	m.Registered[idx] = newRegistration(cat, in)
	return &m.Registered[idx], nil
}

// UnregisterCase removes a registration; the case reverts to the pending set
// with its catalog quantity (the entered quantity is discarded).
func (d *Document) UnregisterCase(materialCode, caseID string) error {
	if err := d.CanModify(); err != nil {
		return err
	}

	m := d.FindMaterial(materialCode)
	if m == nil {
		return apperror.NewNotFound("material", materialCode)
	}

	idx := m.findRegistration(caseID)
	if idx < 0 {
		return apperror.NewCaseNotRegistered(caseID)
	}

	m.Registered = append(m.Registered[:idx], m.Registered[idx+1:]...)
	return nil
}

// resolveCase runs the shared guards of register/edit: document not finalized,
// material exists, case exists in the catalog, location matches.
func (d *Document) resolveCase(materialCode string, in CaseInput) (*Material, CatalogCase, error) {
	if err := d.CanModify(); err != nil {
		return nil, CatalogCase{}, err
	}

	m := d.FindMaterial(materialCode)
	if m == nil {
		return nil, CatalogCase{}, apperror.NewNotFound("material", materialCode)
	}

	cat, ok := m.FindCatalogCase(in.CaseID)
	if !ok {
		return nil, CatalogCase{}, apperror.NewCaseNotFound(in.CaseID)
	}

	if cat.Location != in.Location {
		return nil, CatalogCase{}, apperror.NewLocationMismatch(in.CaseID, in.Location, cat.Location)
	}

	return m, cat, nil
}

// newRegistration builds a registration from the catalog case and the entered
// values, computing the signed quantity discrepancy.
func newRegistration(cat CatalogCase, in CaseInput) Registration {
	delta := in.Quantity.Sub(cat.NominalQuantity)

	flag := FlagMatched
	if !delta.IsZero() {
		flag = FlagMismatched
	}

	return Registration{
		CaseID:          in.CaseID,
		Location:        in.Location,
		EnteredQuantity: in.Quantity,
		ExceptionCode:   in.ExceptionCode,
		State:           StateRegistered,
		Site:            cat.Site,
		StorageLocation: cat.StorageLocation,
		QuantityDelta:   delta,
		Flag:            flag,
	}
}
