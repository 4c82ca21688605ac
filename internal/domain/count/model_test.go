package count

import (
	"context"
	"testing"

	"conteo/internal/core/apperror"
	"conteo/internal/core/types"
)

func TestProcessRequiresContent(t *testing.T) {
	doc := testDocument()

	err := doc.Process()
	if !apperror.IsCode(err, apperror.CodeEmptyCount) {
		t.Errorf("Process on empty count = %v, want %s", err, apperror.CodeEmptyCount)
	}
	if doc.Status != StatusPending {
		t.Errorf("Status = %s after rejected process, want %s", doc.Status, StatusPending)
	}
}

func TestProcessTransition(t *testing.T) {
	doc := testDocument()
	if _, err := doc.RegisterCase("MAT-100", CaseInput{
		CaseID: "007", Location: "A-1", Quantity: types.MustQuantity("10"),
	}); err != nil {
		t.Fatalf("RegisterCase: %v", err)
	}

	if err := doc.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.Status != StatusProcessed {
		t.Errorf("Status = %s, want %s", doc.Status, StatusProcessed)
	}

	// A processed document may be re-processed until posted.
	if err := doc.Process(); err != nil {
		t.Errorf("re-Process while processed: %v", err)
	}

	doc.MarkPosted()
	if err := doc.Process(); !apperror.IsCode(err, apperror.CodeDocumentFinalized) {
		t.Errorf("Process after post = %v, want DOCUMENT_FINALIZED", err)
	}
}

func TestStatusFinalized(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessed, true},
		{StatusPosted, true},
	}
	for _, tt := range tests {
		if got := tt.status.Finalized(); got != tt.want {
			t.Errorf("%s.Finalized() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestDocumentValidate(t *testing.T) {
	ctx := context.Background()

	doc := NewDocument(" 0004711 ")
	if doc.DocumentID != "4711" {
		t.Errorf("DocumentID = %q, want normalized %q", doc.DocumentID, "4711")
	}
	if err := doc.Validate(ctx); err != nil {
		t.Errorf("Validate: %v", err)
	}

	empty := NewDocument("000")
	if err := empty.Validate(ctx); err == nil {
		t.Error("Validate accepted an all-zero document id")
	}

	doc.Status = Status("draft")
	if err := doc.Validate(ctx); err == nil {
		t.Error("Validate accepted unknown status")
	}
}
