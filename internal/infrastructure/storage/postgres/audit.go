package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "conteo/internal/core/context"
	"conteo/internal/core/id"
	"conteo/internal/core/ident"
	"conteo/internal/domain/count"
)

// CompressionAlgo specifies the compression algorithm used for snapshots.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of the count-document audit trail. The full document
// snapshot is stored per action so a discrepancy dispute can be replayed.
type AuditEntry struct {
	ID                 id.ID           `db:"id"`
	DocumentID         string          `db:"document_id"`
	Action             string          `db:"action"`
	Status             string          `db:"status"`
	UserID             string          `db:"user_id"`
	Username           string          `db:"username"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// AuditService records count-document snapshots into count_audit.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes, default 10KB
}

var _ count.Auditor = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// buildEntry assembles the audit row for one action. The document id is
// stored normalized: documents themselves may be persisted under a historical
// padded form, but the trail always keys on the canonical representation so
// History finds it regardless of how the caller spells the id.
func (s *AuditService) buildEntry(ctx context.Context, action string, doc *count.Document) (AuditEntry, error) {
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("marshal document snapshot: %w", err)
	}

	entry := AuditEntry{
		ID:              id.New(),
		DocumentID:      ident.Normalize(doc.DocumentID),
		Action:          action,
		Status:          string(doc.Status),
		Snapshot:        snapshot,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if user := appctx.GetUser(ctx); user != nil {
		entry.UserID = user.UserID
		entry.Username = user.Username
	}

	if len(entry.Snapshot) > s.compressThreshold {
		entry.SnapshotCompressed = s.encoder.EncodeAll(entry.Snapshot, nil)
		entry.Snapshot = nil
		entry.CompressionAlgo = CompressionZstd
	}

	return entry, nil
}

// Record stores a snapshot of the document under the given action.
// A document with many material lines easily clears the compression threshold,
// so large snapshots go in compressed.
func (s *AuditService) Record(ctx context.Context, action string, doc *count.Document) error {
	entry, err := s.buildEntry(ctx, action, doc)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO count_audit (
			id, document_id, action, status, user_id, username,
			snapshot, snapshot_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		entry.ID, entry.DocumentID, entry.Action, entry.Status,
		entry.UserID, entry.Username,
		entry.Snapshot, entry.SnapshotCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)

	return err
}

// History retrieves the audit trail of one document, newest first. The id is
// normalized before matching, mirroring what Record stores.
func (s *AuditService) History(ctx context.Context, documentID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := `
		SELECT id, document_id, action, status, user_id, username,
			   snapshot, snapshot_compressed, compression_algo, created_at
		FROM count_audit
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, ident.Normalize(documentID), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.DocumentID, &e.Action, &e.Status, &e.UserID, &e.Username,
			&e.Snapshot, &e.SnapshotCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.SnapshotCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.SnapshotCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress snapshot: %w", err)
			}
			e.Snapshot = decompressed
			e.SnapshotCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
