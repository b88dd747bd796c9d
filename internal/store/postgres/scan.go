package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into a model.Entry.
// The row must contain columns in the order defined by entryColumns.
func scanEntry(row scannable) (*model.Entry, error) {
	var (
		e    model.Entry
		data []byte
	)
	if err := row.Scan(&e.ID, &e.Path, &data); err != nil {
		return nil, err
	}
	e.Value = jsonOrNil(data)
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]*model.Entry, error) {
	var entries []*model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// jsonOrNil maps a NULL column to a nil document.
func jsonOrNil(data []byte) json.RawMessage {
	if data == nil {
		return nil
	}
	return json.RawMessage(data)
}

// jsonParam converts a document into a bind parameter for a ::json cast.
// A nil document becomes SQL NULL.
func jsonParam(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}
