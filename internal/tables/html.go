package tables

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxDocumentBytes caps how much of a reference page is read.
const maxDocumentBytes = 8 << 20

// HTMLProvider extracts every <table> from an HTML document fetched over
// HTTP, or read from disk for file:// URLs.
type HTMLProvider struct {
	client    *http.Client
	userAgent string
}

// NewHTMLProvider creates an HTMLProvider. A nil client gets a 15s timeout.
func NewHTMLProvider(client *http.Client) *HTMLProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTMLProvider{
		client:    client,
		userAgent: "marketpulse/1.0 (+https://github.com/marketpulse)",
	}
}

// Tables implements Provider.
func (p *HTMLProvider) Tables(ctx context.Context, rawURL string) ([]Table, error) {
	body, err := p.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseHTML(io.LimitReader(body, maxDocumentBytes))
}

func (p *HTMLProvider) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", p.userAgent)
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: status %s", rawURL, resp.Status)
		}
		return resp.Body, nil
	}

	path, err := localPath(rawURL)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

// ParseHTML returns one Table per <table> element in document order. The
// header is the first row made only of <th> cells, falling back to the first
// row. Cell text is whitespace-collapsed; footnote markers in <sup> are
// dropped. Nested tables are parsed as separate tables.
func ParseHTML(r io.Reader) ([]Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var tables []Table
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			tables = append(tables, parseTable(n, len(tables)))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables, nil
}

func parseTable(n *html.Node, idx int) Table {
	t := Table{Name: fmt.Sprintf("table[%d]", idx)}
	if id := attr(n, "id"); id != "" {
		t.Name = id
	}

	var rows [][]string
	var headerOnly []bool
	collectRows(n, func(tr *html.Node) {
		var cells []string
		allTH := true
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom != atom.Td && c.DataAtom != atom.Th {
				continue
			}
			if c.DataAtom == atom.Td {
				allTH = false
			}
			cells = append(cells, cellText(c))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
			headerOnly = append(headerOnly, allTH)
		}
	})
	if len(rows) == 0 {
		return t
	}

	hdr := 0
	for i, h := range headerOnly {
		if h {
			hdr = i
			break
		}
	}
	t.Columns = rows[hdr]
	for _, row := range rows[hdr+1:] {
		t.Rows = append(t.Rows, normalizeRow(row, len(t.Columns)))
	}
	return t
}

// collectRows visits the <tr> elements that belong to table n, skipping rows
// of nested tables.
func collectRows(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Table:
			continue
		case atom.Tr:
			fn(c)
		default:
			collectRows(c, fn)
		}
	}
}

func cellText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Sup || n.DataAtom == atom.Style || n.DataAtom == atom.Script) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// normalizeRow pads or truncates row to width cells.
func normalizeRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
