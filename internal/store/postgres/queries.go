package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// executor is the interface satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// entryColumns is the column list used for SELECT statements on the config table.
const entryColumns = `id, config_path, data`

// mergeData combines the stored and incoming documents on conflict. Only two
// objects are merged; anything else is replaced by the incoming value.
//
// The merge goes through jsonb, which cannot hold the escape \u0000 in a
// string. Update rejects such incoming values up front (see containsNUL); a
// stored document carrying one, written earlier by Set, fails the merge with
// a storage error.
const mergeData = `data = CASE
			WHEN json_typeof(t.data) = 'object' AND json_typeof(EXCLUDED.data) = 'object'
			THEN (t.data::jsonb || EXCLUDED.data::jsonb)::json
			ELSE EXCLUDED.data
		END`

const replaceData = `data = EXCLUDED.data`

// queryGet returns the data stored at path and whether a row was found.
// An empty path matches any row.
func queryGet(ctx context.Context, db executor, s Schema, path string) (json.RawMessage, bool, error) {
	q := `SELECT data FROM ` + s.table() + ` WHERE config_path = $1 LIMIT 1`
	args := []any{path}
	if path == "" {
		q = `SELECT data FROM ` + s.table() + ` LIMIT 1`
		args = nil
	}

	var data []byte
	err := db.QueryRowContext(ctx, q, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return jsonOrNil(data), true, nil
}

// queryUpsert writes value at path. id is only used when the row is new.
func queryUpsert(ctx context.Context, db executor, s Schema, id, path string, value json.RawMessage, mode model.WriteMode) error {
	set := replaceData
	if mode == model.ModeMerge {
		set = mergeData
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO `+s.table()+` AS t (id, config_path, data)
		VALUES ($1, $2, $3::json)
		ON CONFLICT ON CONSTRAINT `+s.constraint()+` DO UPDATE SET `+set,
		id, path, jsonParam(value),
	)
	return err
}

// queryInsertIfAbsent stores value at path only when no row exists there.
// It reports whether a row was inserted.
func queryInsertIfAbsent(ctx context.Context, db executor, s Schema, id, path string, value json.RawMessage) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO `+s.table()+` (id, config_path, data)
		VALUES ($1, $2, $3::json)
		ON CONFLICT ON CONSTRAINT `+s.constraint()+` DO NOTHING`,
		id, path, jsonParam(value),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func queryListEntries(ctx context.Context, db executor, s Schema, prefix string) ([]*model.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM `+s.table()+`
		WHERE config_path LIKE $1 ESCAPE '\'
		ORDER BY config_path`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// escapeLike escapes LIKE metacharacters so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// containsNUL reports whether any string or object key in the document holds
// a NUL character, which jsonb refuses.
func containsNUL(raw json.RawMessage) bool {
	if !bytes.Contains(raw, []byte(`\u0000`)) {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return hasNUL(v)
}

func hasNUL(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.ContainsRune(t, 0)
	case []any:
		for _, e := range t {
			if hasNUL(e) {
				return true
			}
		}
	case map[string]any:
		for k, e := range t {
			if strings.ContainsRune(k, 0) || hasNUL(e) {
				return true
			}
		}
	}
	return false
}
