// Package rowsource reads the full contents of the sales sheet.
//
// Every driver re-reads the whole table on each call; there is no delta
// fetch. Change detection is the monitor's job.
package rowsource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Row is one sheet row, cells in column order.
type Row []string

// Cell returns the i-th cell, or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// Source fetches every visible row, in sheet order.
type Source interface {
	FetchAll(ctx context.Context) ([]Row, error)
}

var ErrInvalidSpreadsheet = errors.New("invalid spreadsheet url or id")

var (
	reSpreadsheetPath = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	reSpreadsheetID   = regexp.MustCompile(`^[a-zA-Z0-9-_]{20,}$`)
)

// ParseSpreadsheetID accepts a full Google Sheets url
// (https://docs.google.com/spreadsheets/d/<id>/edit#gid=0) or a bare id.
func ParseSpreadsheetID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSpreadsheet)
	}
	if reSpreadsheetID.MatchString(s) {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
	}
	m := reSpreadsheetPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSpreadsheet, raw)
	}
	return m[1], nil
}

// Static is an in-memory Source. Tests and dry runs append to it.
type Static struct {
	mu   sync.Mutex
	rows []Row
	err  error
}

func NewStatic(rows ...Row) *Static {
	s := &Static{}
	s.Set(rows...)
	return s
}

// Set replaces the table.
func (s *Static) Set(rows ...Row) {
	s.mu.Lock()
	s.rows = cloneRows(rows)
	s.mu.Unlock()
}

// Append adds rows at the end, like a form submission would.
func (s *Static) Append(rows ...Row) {
	s.mu.Lock()
	s.rows = append(s.rows, cloneRows(rows)...)
	s.mu.Unlock()
}

// FailWith makes the next fetches return err (nil clears it).
func (s *Static) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Static) FetchAll(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return cloneRows(s.rows), nil
}

func cloneRows(in []Row) []Row {
	out := make([]Row, len(in))
	for i, r := range in {
		out[i] = append(Row(nil), r...)
	}
	return out
}

// padRows extends every row with "" up to the widest row, the shape the
// Sheets UI shows and the original gspread-based bot saw.
func padRows(rows []Row) []Row {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}
