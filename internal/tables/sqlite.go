package tables

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"regexp"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteProvider reads tables from a SQLite database file. The optional
// "table" query parameter restricts the result to one table; otherwise every
// user table is returned in name order.
type SQLiteProvider struct{}

// Tables implements Provider.
func (SQLiteProvider) Tables(ctx context.Context, rawURL string) ([]Table, error) {
	path, err := localPath(rawURL)
	if err != nil {
		return nil, err
	}
	// sql.Open would silently create a missing database.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	defer db.Close()

	var names []string
	if u, err := url.Parse(rawURL); err == nil && u.Query().Get("table") != "" {
		names = []string{u.Query().Get("table")}
	} else {
		names, err = listSQLiteTables(ctx, db)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Table, 0, len(names))
	for _, name := range names {
		t, err := readSQLiteTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func listSQLiteTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sqlite tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func readSQLiteTable(ctx context.Context, db *sql.DB, name string) (Table, error) {
	if !identRe.MatchString(name) {
		return Table{}, fmt.Errorf("invalid sqlite table name %q", name)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid`, name))
	if err != nil {
		return Table{}, fmt.Errorf("querying table %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, err
	}
	t := Table{Name: name, Columns: cols}

	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scanning table %s: %w", name, err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			if v.Valid {
				row[i] = v.String
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}
