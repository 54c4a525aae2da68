package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	modelsTable  = "models"
	modelsColumn = "model"
)

// Engine is a JSON document table keyed by an auto-incremented integer.
// Merge patch, path extraction and array append are pushed down to SQLite's
// JSON functions so each mutation is a single statement.
type Engine struct {
	db     *sql.DB
	table  string
	column string
}

// NewEngine binds an Engine to an existing table of shape
// (id INTEGER PRIMARY KEY AUTOINCREMENT, <column> TEXT NOT NULL).
func NewEngine(db *sql.DB, table, column string) *Engine {
	return &Engine{db: db, table: table, column: column}
}

// Insert stores doc and writes the assigned id into it at $.id inside the
// same transaction, so a reader never sees the document without its id.
func (e *Engine) Insert(ctx context.Context, doc []byte) (int64, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(%s) VALUES(json(?))`, e.table, e.column), string(doc))
	if err != nil {
		return 0, storageErr("insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = json_set(%s, '$.id', id) WHERE id = ?`, e.table, e.column, e.column), id); err != nil {
		return 0, storageErr("insert", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("insert", err)
	}
	return id, nil
}

func (e *Engine) Get(ctx context.Context, id int64) ([]byte, error) {
	var doc string
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, e.column, e.table), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return []byte(doc), nil
}

// Put replaces the whole document. The stored id is re-asserted.
func (e *Engine) Put(ctx context.Context, id int64, doc []byte) error {
	res, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = json_set(json(?), '$.id', id) WHERE id = ?`, e.table, e.column),
		string(doc), id)
	return e.checkAffected("put", res, err)
}

// Delete removes the document. Deleting an absent id is not an error.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	_, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, e.table), id)
	return storageErr("delete", err)
}

// Extract returns the JSON value at path, or nil when the document has no
// such path. ErrNotFound means the document itself does not exist.
func (e *Engine) Extract(ctx context.Context, id int64, path string) (json.RawMessage, error) {
	var value sql.NullString
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s -> ? FROM %s WHERE id = ?`, e.column, e.table),
		normalizePath(path), id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("extract", err)
	}
	if !value.Valid {
		return nil, nil
	}
	return json.RawMessage(value.String), nil
}

// Patch applies an RFC 7396 merge patch. Objects merge key by key, other
// values replace, null deletes. The id survives any patch.
func (e *Engine) Patch(ctx context.Context, id int64, patch []byte) error {
	res, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = json_set(json_patch(%s, json(?)), '$.id', id) WHERE id = ?`,
			e.table, e.column, e.column),
		string(patch), id)
	return e.checkAffected("patch", res, err)
}

// Append pushes elem onto the array at path, creating the array if the
// document lacks it. Any other value at path is left alone and reported as
// ErrNotArray.
func (e *Engine) Append(ctx context.Context, id int64, path string, elem []byte) error {
	p := normalizePath(path)
	res, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %[1]s SET %[2]s = json_insert(json_insert(%[2]s, ?, json('[]')), ?, json(?))
			WHERE id = ? AND coalesce(json_type(%[2]s, ?), 'array') = 'array'`,
			e.table, e.column),
		p, p+"[#]", string(elem), id, p)
	if err != nil {
		return storageErr("append", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("append", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := e.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("append to %s: %w", p, ErrNotArray)
}

func (e *Engine) exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)`, e.table), id).Scan(&found)
	if err != nil {
		return false, storageErr("exists", err)
	}
	return found, nil
}

// Scan lists documents newest first. offset only applies together with a
// positive limit.
func (e *Engine) Scan(ctx context.Context, limit, offset int) ([][]byte, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC`, e.column, e.table)
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			query += ` OFFSET ?`
			args = append(args, offset)
		}
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("scan", err)
	}
	defer rows.Close()

	docs := make([][]byte, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, storageErr("scan", err)
		}
		docs = append(docs, []byte(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan", err)
	}
	return docs, nil
}

func (e *Engine) checkAffected(op string, res sql.Result, err error) error {
	if err != nil {
		return storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizePath accepts "history", ".history" or "$.history".
func normalizePath(path string) string {
	switch {
	case path == "" || path == "$":
		return "$"
	case strings.HasPrefix(path, "$"):
		return path
	case strings.HasPrefix(path, "."), strings.HasPrefix(path, "["):
		return "$" + path
	default:
		return "$." + path
	}
}
