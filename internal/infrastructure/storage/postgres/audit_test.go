package postgres

import (
	"bytes"
	"context"
	"testing"

	appctx "conteo/internal/core/context"
	"conteo/internal/domain/count"
)

func TestAuditEntryKeysOnNormalizedID(t *testing.T) {
	svc, err := NewAuditService(nil)
	if err != nil {
		t.Fatalf("NewAuditService: %v", err)
	}
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u1", Username: "mlopez",
	})

	// Historical documents are stored padded; the trail key must not be.
	for _, docID := range []string{"4711", "0004711", " 0004711 "} {
		doc := count.NewDocument(docID)
		doc.DocumentID = docID

		entry, err := svc.buildEntry(ctx, count.AuditSave, doc)
		if err != nil {
			t.Fatalf("buildEntry(%q): %v", docID, err)
		}
		if entry.DocumentID != "4711" {
			t.Errorf("entry key for %q = %q, want 4711", docID, entry.DocumentID)
		}
		if entry.Username != "mlopez" {
			t.Errorf("Username = %q, want the operator from context", entry.Username)
		}
	}
}

func TestAuditEntryCompression(t *testing.T) {
	svc, err := NewAuditService(nil)
	if err != nil {
		t.Fatalf("NewAuditService: %v", err)
	}
	ctx := context.Background()
	doc := count.NewDocument("4711")

	entry, err := svc.buildEntry(ctx, count.AuditSave, doc)
	if err != nil {
		t.Fatalf("buildEntry: %v", err)
	}
	if entry.CompressionAlgo != CompressionNone || len(entry.Snapshot) == 0 {
		t.Errorf("small snapshot: algo=%s snapshot=%d bytes, want uncompressed inline",
			entry.CompressionAlgo, len(entry.Snapshot))
	}
	plain := entry.Snapshot

	svc.compressThreshold = 1
	entry, err = svc.buildEntry(ctx, count.AuditSave, doc)
	if err != nil {
		t.Fatalf("buildEntry over threshold: %v", err)
	}
	if entry.CompressionAlgo != CompressionZstd || entry.Snapshot != nil {
		t.Fatalf("large snapshot: algo=%s, want zstd with inline snapshot cleared", entry.CompressionAlgo)
	}

	decompressed, err := svc.decoder.DecodeAll(entry.SnapshotCompressed, nil)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(decompressed, plain) {
		t.Error("decompressed snapshot differs from the original JSON")
	}
}
