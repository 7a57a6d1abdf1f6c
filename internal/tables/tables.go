// Package tables retrieves tabular datasets from reference documents. A
// document is addressed by URL; the scheme and file extension select the
// reader (HTML page, CSV, Parquet, or SQLite database).
package tables

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Table is a single dataset with named columns. Every row has len(Columns)
// cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Column returns the index of the column whose trimmed header equals name
// (case-insensitive), or -1.
func (t Table) Column(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// Values returns the cells of column idx in row order.
func (t Table) Values(idx int) []string {
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out
}

// Provider returns zero or more tables found in the document at rawURL.
type Provider interface {
	Tables(ctx context.Context, rawURL string) ([]Table, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, rawURL string) ([]Table, error)

// Tables calls f.
func (f ProviderFunc) Tables(ctx context.Context, rawURL string) ([]Table, error) {
	return f(ctx, rawURL)
}

// Router dispatches a URL to the reader that understands it:
//
//	http(s)://...            HTML page, every <table> element
//	file:///x.csv, /x.csv    CSV file with a header row
//	file:///x.parquet        Parquet file, string-typed columns
//	sqlite:///x.db?table=t   rows of table t (every table when omitted)
type Router struct {
	HTML    Provider
	CSV     Provider
	Parquet Provider
	SQLite  Provider
}

// NewRouter returns a Router wired with the default readers.
func NewRouter(html *HTMLProvider) *Router {
	if html == nil {
		html = NewHTMLProvider(nil)
	}
	return &Router{
		HTML:    html,
		CSV:     CSVProvider{},
		Parquet: ParquetProvider{},
		SQLite:  SQLiteProvider{},
	}
}

// Tables implements Provider.
func (r *Router) Tables(ctx context.Context, rawURL string) ([]Table, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing reference url %q: %w", rawURL, err)
	}

	var p Provider
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		p = r.HTML
	case "sqlite":
		p = r.SQLite
	case "file", "":
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".csv":
			p = r.CSV
		case ".parquet":
			p = r.Parquet
		case ".db", ".sqlite", ".sqlite3":
			p = r.SQLite
		case ".html", ".htm":
			p = r.HTML
		}
	}
	if p == nil {
		return nil, fmt.Errorf("no table reader for %q", rawURL)
	}
	if u.Scheme == "" || strings.EqualFold(u.Scheme, "file") {
		if rawURL, err = latestMatch(rawURL); err != nil {
			return nil, err
		}
	}
	return p.Tables(ctx, rawURL)
}

// latestMatch resolves a "*" pattern such as "ref/nifty50_*.csv" to its
// lexically last match, so date-stamped snapshots pick the newest file.
// Paths without a "*" are returned unchanged.
func latestMatch(rawURL string) (string, error) {
	p, err := localPath(rawURL)
	if err != nil || !strings.Contains(p, "*") {
		return rawURL, err
	}
	matches, err := filepath.Glob(p)
	if err != nil {
		return "", fmt.Errorf("bad reference pattern %q: %w", p, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no reference file matches %q", p)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// localPath turns a file:// URL or bare path into a filesystem path.
func localPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "", "file", "sqlite":
		if u.Host != "" && u.Host != "localhost" {
			// file://relative/path.csv parses the first segment as a host.
			return u.Host + u.Path, nil
		}
		return u.Path, nil
	default:
		return "", fmt.Errorf("%q is not a local file", rawURL)
	}
}
