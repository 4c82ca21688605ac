package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conteo/internal/core/types"
	"conteo/internal/domain/count"
)

func sampleDocument() *count.Document {
	return &count.Document{
		DocumentID:      "4711",
		Site:            "P001",
		StorageLocation: "0001",
		PostingDate:     "20260830",
		ERPUser:         "WMSBATCH",
		ReferenceDoc:    "REF-1",
		Status:          count.StatusPending,
		Materials: []count.Material{
			{
				LineNo:          1,
				MaterialCode:    "MAT-100",
				Description:     "Pallet widget",
				NominalQuantity: types.MustQuantity("30"),
				Unit:            "EA",
				CatalogCases: []count.CatalogCase{
					{CaseID: "007", Site: "P001", StorageLocation: "0001", Location: "A-1", NominalQuantity: types.MustQuantity("10")},
					{CaseID: "008", Site: "P001", StorageLocation: "0001", Location: "A-2", NominalQuantity: types.MustQuantity("12")},
				},
				Registered: []count.Registration{
					{
						CaseID:          "007",
						Location:        "A-1",
						EnteredQuantity: types.MustQuantity("7"),
						State:           count.StateRegistered,
						Site:            "P001",
						StorageLocation: "0001",
						QuantityDelta:   types.MustQuantity("-3"),
						Flag:            count.FlagMismatched,
					},
				},
			},
		},
	}
}

func TestEstadoMapping(t *testing.T) {
	cases := map[count.Status]string{
		count.StatusPending:   EstadoPendiente,
		count.StatusProcessed: EstadoProcesado,
		count.StatusPosted:    EstadoContabilizado,
	}
	for status, estado := range cases {
		assert.Equal(t, estado, EstadoFromStatus(status))

		back, ok := StatusFromEstado(estado)
		require.True(t, ok)
		assert.Equal(t, status, back)
	}

	_, ok := StatusFromEstado("archivado")
	assert.False(t, ok)

	// empty estado defaults to pending for new payloads
	status, ok := StatusFromEstado("")
	require.True(t, ok)
	assert.Equal(t, count.StatusPending, status)
}

func TestFromCountDocument(t *testing.T) {
	resp := FromCountDocument(sampleDocument())

	assert.Equal(t, "4711", resp.IBLNR)
	assert.Equal(t, "P001", resp.WERKS)
	assert.Equal(t, EstadoPendiente, resp.Estado)
	require.Len(t, resp.Materiales, 1)

	m := resp.Materiales[0]
	assert.Equal(t, "MAT-100", m.MATNR)
	assert.Equal(t, "30", m.MENGE)
	assert.False(t, m.Completo)

	// partition: case 008 pending, case 007 registered
	require.Len(t, m.CasesPendientes, 1)
	assert.Equal(t, "008", m.CasesPendientes[0].Case)
	assert.Equal(t, "12", m.CasesPendientes[0].Cantidad)

	require.Len(t, m.CasesRegistrados, 1)
	reg := m.CasesRegistrados[0]
	assert.Equal(t, "007", reg.Case)
	assert.Equal(t, "7", reg.Cantidad)
	assert.Equal(t, "-3", reg.Diferencia)
	assert.Equal(t, ColorRed, reg.Color)
	assert.Equal(t, "registrado", reg.Estado)
}

func TestRegistrationColor(t *testing.T) {
	matched := count.Registration{Flag: count.FlagMatched, EnteredQuantity: types.MustQuantity("10")}
	assert.Equal(t, ColorGreen, FromRegistration(&matched).Color)

	mismatched := count.Registration{Flag: count.FlagMismatched, EnteredQuantity: types.MustQuantity("9")}
	assert.Equal(t, ColorRed, FromRegistration(&mismatched).Color)
}

func TestRegisterCaseRequestQuantity(t *testing.T) {
	req := RegisterCaseRequest{Case: "007", Ubicacion: "A-1", Cantidad: "12.5"}
	in, err := req.ToCaseInput()
	require.NoError(t, err)
	assert.Equal(t, "12.5", in.Quantity.String())

	req.Cantidad = "doce"
	_, err = req.ToCaseInput()
	assert.Error(t, err)
}

func TestSaveCountRequestToDocument(t *testing.T) {
	req := SaveCountRequest{
		WERKS:  "P001",
		LGORT:  "0001",
		Estado: EstadoPendiente,
		Materiales: []SaveMaterialRequest{
			{
				MATNR: "MAT-100",
				MENGE: "30",
				MEINS: "EA",
				CasesRegistrados: []RegisterCaseRequest{
					{Case: "007", Ubicacion: "A-1", Cantidad: "7"},
				},
			},
		},
	}

	doc, err := req.ToDocument("0004711")
	require.NoError(t, err)
	assert.Equal(t, "0004711", doc.DocumentID)
	assert.Equal(t, count.StatusPending, doc.Status)
	require.Len(t, doc.Materials, 1)
	require.Len(t, doc.Materials[0].Registered, 1)
	assert.Equal(t, "7", doc.Materials[0].Registered[0].EnteredQuantity.String())
	assert.Equal(t, count.StateRegistered, doc.Materials[0].Registered[0].State)

	req.Estado = "archivado"
	_, err = req.ToDocument("0004711")
	assert.Error(t, err)
}
