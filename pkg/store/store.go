package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marketrow/stallgate/pkg/auth"
	"github.com/marketrow/stallgate/pkg/policy"
)

// querier is satisfied by both *sql.DB and *sql.Tx so that the same document
// accessors serve the plain store and the guarded transaction path.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// collectionMeta describes how a collection maps onto its table: which
// document fields are extracted into queryable columns alongside the JSON.
type collectionMeta struct {
	table   string
	columns []string
	extract func(doc policy.Document) []interface{}
}

var collections = map[policy.Collection]collectionMeta{
	policy.CollectionUsers: {
		table:   "users",
		columns: []string{"role"},
		extract: func(doc policy.Document) []interface{} {
			return []interface{}{doc.GetString(policy.FieldRole)}
		},
	},
	policy.CollectionSites: {
		table: "sites",
	},
	policy.CollectionStalls: {
		table:   "stalls",
		columns: []string{"site_id"},
		extract: func(doc policy.Document) []interface{} {
			return []interface{}{doc.GetString(policy.FieldSiteID)}
		},
	},
	policy.CollectionStockItems: {
		table:   "stock_items",
		columns: []string{"site_id", "stall_id", "original_master_item_id", "quantity"},
		extract: func(doc policy.Document) []interface{} {
			var stallID, masterID interface{}
			if !doc.IsNull(policy.FieldStallID) {
				stallID = doc.GetString(policy.FieldStallID)
			}
			if !doc.IsNull(policy.FieldOriginalMasterItemID) {
				masterID = doc.GetString(policy.FieldOriginalMasterItemID)
			}
			return []interface{}{
				doc.GetString(policy.FieldSiteID),
				stallID,
				masterID,
				doc.GetNumber(policy.FieldQuantity),
			}
		},
	},
	policy.CollectionSalesTransactions: {
		table:   "sales_transactions",
		columns: []string{"staff_id", "site_id", "is_deleted"},
		extract: func(doc policy.Document) []interface{} {
			isDeleted := 0
			if v, ok := doc[policy.FieldIsDeleted].(bool); ok && v {
				isDeleted = 1
			}
			return []interface{}{
				doc.GetString(policy.FieldStaffID),
				doc.GetString(policy.FieldSiteID),
				isDeleted,
			}
		},
	},
}

func metaFor(collection policy.Collection) (collectionMeta, error) {
	meta, ok := collections[collection]
	if !ok {
		return collectionMeta{}, fmt.Errorf("unknown collection: %s", collection)
	}
	return meta, nil
}

// Store persists collection documents and API tokens. It also implements
// policy.Loader and auth.ProfileLoader for non-transactional reads; the
// guarded commit path binds the same accessors to its own transaction.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transaction management
func (s *Store) DB() *sql.DB {
	return s.db
}

// Get returns a document, or nil when it does not exist
func (s *Store) Get(ctx context.Context, collection policy.Collection, id string) (policy.Document, error) {
	return getDoc(ctx, s.db, collection, id)
}

// List returns every document of a collection in creation order
func (s *Store) List(ctx context.Context, collection policy.Collection) ([]policy.Document, error) {
	meta, err := metaFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s ORDER BY created_at, id", meta.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	return scanDocs(rows)
}

// Load implements policy.Loader
func (s *Store) Load(ctx context.Context, collection policy.Collection, id string) (policy.Document, error) {
	return getDoc(ctx, s.db, collection, id)
}

// LoadRelated implements policy.Loader
func (s *Store) LoadRelated(ctx context.Context, collection policy.Collection, id string, relation policy.Relation) ([]policy.Document, error) {
	return loadRelated(ctx, s.db, collection, id, relation)
}

// LoadProfile implements auth.ProfileLoader
func (s *Store) LoadProfile(ctx context.Context, uid string) (policy.Document, error) {
	return getDoc(ctx, s.db, policy.CollectionUsers, uid)
}

func getDoc(ctx context.Context, q querier, collection policy.Collection, id string) (policy.Document, error) {
	meta, err := metaFor(collection)
	if err != nil {
		return nil, err
	}

	var raw string
	err = q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", meta.table), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	return decodeDoc(raw)
}

func loadRelated(ctx context.Context, q querier, collection policy.Collection, id string, relation policy.Relation) ([]policy.Document, error) {
	if collection != policy.CollectionStockItems || relation != policy.RelationMirrors {
		return nil, fmt.Errorf("unknown relation %s on %s", relation, collection)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT doc FROM stock_items WHERE original_master_item_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirrors for %s: %w", id, err)
	}
	defer rows.Close()

	return scanDocs(rows)
}

func insertDoc(ctx context.Context, q querier, collection policy.Collection, doc policy.Document, now time.Time) error {
	meta, err := metaFor(collection)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	cols := append([]string{"id", "doc"}, meta.columns...)
	cols = append(cols, "created_at", "updated_at")

	args := []interface{}{doc.GetString(policy.FieldID), string(raw)}
	if meta.extract != nil {
		args = append(args, meta.extract(doc)...)
	}
	args = append(args, now, now)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		meta.table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

func updateDoc(ctx context.Context, q querier, collection policy.Collection, doc policy.Document, now time.Time) error {
	meta, err := metaFor(collection)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	// Placeholders stay in occurrence order; sqlite indexes $N names by
	// first appearance, not by number.
	sets := []string{"doc = $1"}
	args := []interface{}{string(raw)}
	if meta.extract != nil {
		for i, col := range meta.columns {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
		}
		args = append(args, meta.extract(doc)...)
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, now)
	args = append(args, doc.GetString(policy.FieldID))

	_, err = q.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d", meta.table, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return nil
}

func deleteDoc(ctx context.Context, q querier, collection policy.Collection, id string) error {
	meta, err := metaFor(collection)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1", meta.table), id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func scanDocs(rows *sql.Rows) ([]policy.Document, error) {
	var docs []policy.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func decodeDoc(raw string) (policy.Document, error) {
	var doc policy.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// InsertToken implements auth.TokenStore
func (s *Store) InsertToken(ctx context.Context, token *auth.APIToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, name, description, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.TokenPrefix,
		token.Name,
		token.Description,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetTokenByHash implements auth.TokenStore. A missing token returns
// (nil, nil); the manager maps that to an authentication failure.
func (s *Store) GetTokenByHash(ctx context.Context, tokenHash string) (*auth.APIToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE token_hash = $1`, tokenHash)

	token, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// TouchToken implements auth.TokenStore
func (s *Store) TouchToken(ctx context.Context, tokenID string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_tokens SET last_used_at = $1 WHERE id = $2", usedAt, tokenID)
	return err
}

// RevokeToken implements auth.TokenStore
func (s *Store) RevokeToken(ctx context.Context, tokenID, revokedBy, reason string, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL`,
		revokedAt, revokedBy, reason, tokenID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ListUserTokens implements auth.TokenStore
func (s *Store) ListUserTokens(ctx context.Context, userID string) ([]*auth.APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_prefix, name, description,
		       expires_at, last_used_at, created_at, revoked_at, revoked_by, revoke_reason
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*auth.APIToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// scanToken scans a token from a database row
func scanToken(scanner interface {
	Scan(dest ...interface{}) error
}) (*auth.APIToken, error) {
	var token auth.APIToken
	var expiresAt, lastUsedAt, revokedAt sql.NullTime

	err := scanner.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.TokenPrefix,
		&token.Name,
		&token.Description,
		&expiresAt,
		&lastUsedAt,
		&token.CreatedAt,
		&revokedAt,
		&token.RevokedBy,
		&token.RevokeReason,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		token.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		token.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}

	return &token, nil
}
