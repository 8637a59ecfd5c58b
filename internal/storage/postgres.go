package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tongbuying/internal/member"
)

// PostgresBackend persists the member collection as a single document row
// with a monotonically increasing version counter. The counter plays the
// same role as the GitHub content sha: a save carrying a stale version is
// rejected with ErrVersionConflict.
type PostgresBackend struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{
		db:     db,
		tracer: otel.Tracer("tongbuying/storage"),
	}
}

// EnsureSchema creates the document table if it does not exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS member_documents (
			id         smallint PRIMARY KEY,
			doc        jsonb NOT NULL,
			version    bigint NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create member_documents table: %w", err)
	}
	return nil
}

// Load reads the document row. A missing row degrades to an empty collection
// at version 0, so the first save bootstraps the row.
func (b *PostgresBackend) Load(ctx context.Context) ([]member.Member, string, error) {
	ctx, span := b.tracer.Start(ctx, "postgres.load")
	defer span.End()

	var (
		raw     []byte
		version int64
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT doc, version FROM member_documents WHERE id = 1
	`).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return []member.Member{}, "0", nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("query members document: %w", err)
	}

	var doc member.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("parse members document: %w", err)
	}
	if doc.Members == nil {
		doc.Members = []member.Member{}
	}

	span.SetAttributes(attribute.Int("members.count", len(doc.Members)))
	return doc.Members, strconv.FormatInt(version, 10), nil
}

// Save replaces the document, guarded by the version the caller read. Zero
// affected rows means another writer got there first.
func (b *PostgresBackend) Save(ctx context.Context, members []member.Member, version, _ string) (string, error) {
	ctx, span := b.tracer.Start(ctx, "postgres.save",
		trace.WithAttributes(attribute.Int("members.count", len(members))),
	)
	defer span.End()

	expected, err := strconv.ParseInt(version, 10, 64)
	if err != nil && version != "" {
		return "", fmt.Errorf("invalid version token %q: %w", version, err)
	}

	doc := member.Document{Members: members, LastUpdated: timestamp()}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal members document: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expected == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO member_documents (id, doc, version, updated_at)
			VALUES (1, $1, 1, now())
			ON CONFLICT (id) DO UPDATE
			SET doc = EXCLUDED.doc, version = 1, updated_at = now()
			WHERE member_documents.version = 0
		`, raw)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE member_documents
			SET doc = $1, version = version + 1, updated_at = now()
			WHERE id = 1 AND version = $2
		`, raw, expected)
	}
	if err != nil {
		// Unique violation means a concurrent bootstrap raced us.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", ErrVersionConflict
		}
		span.RecordError(err)
		return "", fmt.Errorf("write members document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return "", ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return strconv.FormatInt(expected+1, 10), nil
}
