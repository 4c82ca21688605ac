package dto

import (
	"time"

	"conteo/internal/core/apperror"
	"conteo/internal/core/types"
	"conteo/internal/domain/count"
)

// Document lifecycle states on the wire. The handheld clients and the ERP
// speak Spanish; the domain keeps English names.
const (
	EstadoPendiente     = "pendiente"
	EstadoProcesado     = "procesado"
	EstadoContabilizado = "contabilizado"
)

// Discrepancy colors shown on the handheld.
const (
	ColorGreen = "green"
	ColorRed   = "red"
)

// Registration state on the wire.
const estadoRegistrado = "registrado"

// EstadoFromStatus maps a domain status to its wire name.
func EstadoFromStatus(s count.Status) string {
	switch s {
	case count.StatusProcessed:
		return EstadoProcesado
	case count.StatusPosted:
		return EstadoContabilizado
	default:
		return EstadoPendiente
	}
}

// StatusFromEstado maps a wire state back to the domain status.
func StatusFromEstado(estado string) (count.Status, bool) {
	switch estado {
	case EstadoPendiente, "":
		return count.StatusPending, true
	case EstadoProcesado:
		return count.StatusProcessed, true
	case EstadoContabilizado:
		return count.StatusPosted, true
	}
	return "", false
}

func colorFromFlag(f count.DiscrepancyFlag) string {
	if f == count.FlagMismatched {
		return ColorRed
	}
	return ColorGreen
}

// --- Response DTOs ---

// CountDocumentResponse is the reconciled document view. Header fields keep
// their SAP names so the existing handheld clients need no translation layer.
type CountDocumentResponse struct {
	IBLNR      string                  `json:"IBLNR"`
	WERKS      string                  `json:"WERKS"`
	LGORT      string                  `json:"LGORT"`
	BLDAT      string                  `json:"BLDAT"`
	USNAM      string                  `json:"USNAM"`
	XBLNI      string                  `json:"XBLNI"`
	Estado     string                  `json:"estado"`
	Nuevo      bool                    `json:"nuevo"`
	Materiales []CountMaterialResponse `json:"MATERIALES"`
	ModifiedBy string                  `json:"modifiedBy,omitempty"`
	ModifiedAt *time.Time              `json:"modifiedAt,omitempty"`
}

// CountMaterialResponse is one material line with its case partition.
type CountMaterialResponse struct {
	MATNR            string                   `json:"MATNR"`
	MAKTX            string                   `json:"MAKTX"`
	MENGE            string                   `json:"MENGE"`
	MEINS            string                   `json:"MEINS"`
	Completo         bool                     `json:"completo"`
	CasesPendientes  []PendingCaseResponse    `json:"casesPendientes"`
	CasesRegistrados []RegisteredCaseResponse `json:"casesRegistrados"`
}

// PendingCaseResponse is a catalog case not yet registered.
type PendingCaseResponse struct {
	Case      string `json:"case"`
	Werks     string `json:"werks"`
	Lgort     string `json:"lgort"`
	Ubicacion string `json:"ubicacion"`
	Cantidad  string `json:"cantidad"`
	Excepcion string `json:"excepcion"`
}

// RegisteredCaseResponse is an operator registration with its discrepancy.
type RegisteredCaseResponse struct {
	Case       string `json:"case"`
	Ubicacion  string `json:"ubicacion"`
	Cantidad   string `json:"cantidad"`
	Estado     string `json:"estado"`
	Excepcion  string `json:"excepcion"`
	Color      string `json:"color"`
	Werks      string `json:"werks"`
	Lgort      string `json:"lgort"`
	Diferencia string `json:"diferencia"`
}

// CountListItemResponse is one row of the stored-document listing.
type CountListItemResponse struct {
	IBLNR      string    `json:"IBLNR"`
	WERKS      string    `json:"WERKS"`
	LGORT      string    `json:"LGORT"`
	BLDAT      string    `json:"BLDAT"`
	XBLNI      string    `json:"XBLNI"`
	Estado     string    `json:"estado"`
	ModifiedBy string    `json:"modifiedBy"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// FromCountDocument maps the reconciled aggregate to the wire shape.
func FromCountDocument(doc *count.Document) *CountDocumentResponse {
	resp := &CountDocumentResponse{
		IBLNR:      doc.DocumentID,
		WERKS:      doc.Site,
		LGORT:      doc.StorageLocation,
		BLDAT:      doc.PostingDate,
		USNAM:      doc.ERPUser,
		XBLNI:      doc.ReferenceDoc,
		Estado:     EstadoFromStatus(doc.Status),
		Nuevo:      doc.IsNew,
		Materiales: make([]CountMaterialResponse, 0, len(doc.Materials)),
		ModifiedBy: doc.ModifiedBy,
	}
	if !doc.ModifiedAt.IsZero() {
		t := doc.ModifiedAt
		resp.ModifiedAt = &t
	}

	for i := range doc.Materials {
		resp.Materiales = append(resp.Materiales, fromMaterial(&doc.Materials[i]))
	}
	return resp
}

func fromMaterial(m *count.Material) CountMaterialResponse {
	line := CountMaterialResponse{
		MATNR:            m.MaterialCode,
		MAKTX:            m.Description,
		MENGE:            m.NominalQuantity.String(),
		MEINS:            m.Unit,
		Completo:         m.Completed(),
		CasesPendientes:  make([]PendingCaseResponse, 0, len(m.CatalogCases)),
		CasesRegistrados: make([]RegisteredCaseResponse, 0, len(m.Registered)),
	}

	for _, cc := range m.Pending() {
		line.CasesPendientes = append(line.CasesPendientes, PendingCaseResponse{
			Case:      cc.CaseID,
			Werks:     cc.Site,
			Lgort:     cc.StorageLocation,
			Ubicacion: cc.Location,
			Cantidad:  cc.NominalQuantity.String(),
			Excepcion: cc.ExceptionCode,
		})
	}

	for i := range m.Registered {
		line.CasesRegistrados = append(line.CasesRegistrados, FromRegistration(&m.Registered[i]))
	}

	return line
}

// FromRegistration maps one registration to the wire shape.
func FromRegistration(reg *count.Registration) RegisteredCaseResponse {
	return RegisteredCaseResponse{
		Case:       reg.CaseID,
		Ubicacion:  reg.Location,
		Cantidad:   reg.EnteredQuantity.String(),
		Estado:     estadoRegistrado,
		Excepcion:  reg.ExceptionCode,
		Color:      colorFromFlag(reg.Flag),
		Werks:      reg.Site,
		Lgort:      reg.StorageLocation,
		Diferencia: reg.QuantityDelta.String(),
	}
}

// FromCountListItem maps a stored header to the listing row.
func FromCountListItem(doc *count.Document) CountListItemResponse {
	return CountListItemResponse{
		IBLNR:      doc.DocumentID,
		WERKS:      doc.Site,
		LGORT:      doc.StorageLocation,
		BLDAT:      doc.PostingDate,
		XBLNI:      doc.ReferenceDoc,
		Estado:     EstadoFromStatus(doc.Status),
		ModifiedBy: doc.ModifiedBy,
		ModifiedAt: doc.ModifiedAt,
	}
}

// --- Request DTOs ---

// RegisterCaseRequest carries the operator-entered case fields.
type RegisterCaseRequest struct {
	Case      string `json:"case" binding:"required"`
	Ubicacion string `json:"ubicacion" binding:"required"`
	Cantidad  string `json:"cantidad" binding:"required"`
	Excepcion string `json:"excepcion"`
}

// ToCaseInput converts to the domain input, parsing the quantity.
func (r *RegisterCaseRequest) ToCaseInput() (count.CaseInput, error) {
	qty, err := types.ParseQuantity(r.Cantidad)
	if err != nil {
		return count.CaseInput{}, apperror.NewValidation("invalid quantity").
			WithDetail("field", "cantidad").
			WithDetail("value", r.Cantidad)
	}
	return count.CaseInput{
		CaseID:        r.Case,
		Location:      r.Ubicacion,
		Quantity:      qty,
		ExceptionCode: r.Excepcion,
	}, nil
}

// EditCaseRequest carries the replacement values for a registered case.
// The case id comes from the URL, never from the body.
type EditCaseRequest struct {
	Ubicacion string `json:"ubicacion" binding:"required"`
	Cantidad  string `json:"cantidad" binding:"required"`
	Excepcion string `json:"excepcion"`
}

// ToCaseInput converts to the domain input for the given case id.
func (r *EditCaseRequest) ToCaseInput(caseID string) (count.CaseInput, error) {
	reg := RegisterCaseRequest{
		Case:      caseID,
		Ubicacion: r.Ubicacion,
		Cantidad:  r.Cantidad,
		Excepcion: r.Excepcion,
	}
	return reg.ToCaseInput()
}

// SaveCountRequest is the full document payload for an explicit save.
type SaveCountRequest struct {
	WERKS      string                `json:"WERKS"`
	LGORT      string                `json:"LGORT"`
	BLDAT      string                `json:"BLDAT"`
	USNAM      string                `json:"USNAM"`
	XBLNI      string                `json:"XBLNI"`
	Estado     string                `json:"estado"`
	Materiales []SaveMaterialRequest `json:"MATERIALES"`
	ModifiedAt *time.Time            `json:"modifiedAt"`
}

// SaveMaterialRequest is one material line of a save payload.
type SaveMaterialRequest struct {
	MATNR            string                `json:"MATNR"`
	MAKTX            string                `json:"MAKTX"`
	MENGE            string                `json:"MENGE"`
	MEINS            string                `json:"MEINS"`
	CasesRegistrados []RegisterCaseRequest `json:"casesRegistrados"`
}

// ToDocument converts the save payload to a domain document. Registrations are
// carried over raw; the service re-validates them against a fresh catalog.
func (r *SaveCountRequest) ToDocument(documentID string) (*count.Document, error) {
	status, ok := StatusFromEstado(r.Estado)
	if !ok {
		return nil, apperror.NewValidation("unknown estado").WithDetail("estado", r.Estado)
	}

	doc := &count.Document{
		DocumentID:      documentID,
		Site:            r.WERKS,
		StorageLocation: r.LGORT,
		PostingDate:     r.BLDAT,
		ERPUser:         r.USNAM,
		ReferenceDoc:    r.XBLNI,
		Status:          status,
		Materials:       make([]count.Material, 0, len(r.Materiales)),
	}
	if r.ModifiedAt != nil {
		doc.ModifiedAt = *r.ModifiedAt
	}

	for i, m := range r.Materiales {
		nominal, err := types.ParseQuantity(m.MENGE)
		if err != nil {
			return nil, apperror.NewValidation("invalid material quantity").
				WithDetail("material", m.MATNR).
				WithDetail("value", m.MENGE)
		}

		line := count.Material{
			LineNo:          i + 1,
			MaterialCode:    m.MATNR,
			Description:     m.MAKTX,
			NominalQuantity: nominal,
			Unit:            m.MEINS,
			Registered:      make([]count.Registration, 0, len(m.CasesRegistrados)),
		}

		for _, cr := range m.CasesRegistrados {
			in, err := cr.ToCaseInput()
			if err != nil {
				return nil, err
			}
			line.Registered = append(line.Registered, count.Registration{
				CaseID:          in.CaseID,
				Location:        in.Location,
				EnteredQuantity: in.Quantity,
				ExceptionCode:   in.ExceptionCode,
				State:           count.StateRegistered,
			})
		}

		doc.Materials = append(doc.Materials, line)
	}

	return doc, nil
}
