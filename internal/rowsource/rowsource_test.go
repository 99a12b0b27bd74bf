package rowsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpreadsheetID(t *testing.T) {
	const id = "1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789_-xy"
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://docs.google.com/spreadsheets/d/" + id + "/edit#gid=0", want: id},
		{in: "https://docs.google.com/spreadsheets/d/" + id, want: id},
		{in: "  " + id + "  ", want: id},
		{in: "https://example.com/not/a/sheet", wantErr: true},
		{in: "", wantErr: true},
		{in: "short", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseSpreadsheetID(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidSpreadsheet, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestCSVFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Product,Qty,Customer\nWidget,10,Bob\n\"Gadget, large\",2\n,,\n,,\n"))
	}))
	defer srv.Close()

	src, err := NewCSV(srv.URL, srv.Client())
	require.NoError(t, err)
	rows, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{"Widget", "10", "Bob"}, rows[1])
	assert.Equal(t, Row{"Gadget, large", "2"}, rows[2])
}

func TestCSVHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	src, err := NewCSV(srv.URL, srv.Client())
	require.NoError(t, err)
	_, err = src.FetchAll(context.Background())
	require.ErrorContains(t, err, "http 403")
}

func TestStaticCopiesAndFails(t *testing.T) {
	s := NewStatic(Row{"a", "1", "x"})
	rows, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	rows[0][0] = "mutated"

	s.Append(Row{"b", "2", "y"})
	rows, err = s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0][0])

	boom := errors.New("quota")
	s.FailWith(boom)
	_, err = s.FetchAll(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestPadRows(t *testing.T) {
	rows := padRows([]Row{{"a", "1", "x", "note"}, {"b", "2"}, {}})
	assert.Equal(t, Row{"b", "2", "", ""}, rows[1])
	assert.Len(t, rows[2], 4)
}

func TestExportURL(t *testing.T) {
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=7", ExportURL("abc", "7"))
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv", ExportURL("abc", ""))
}

func TestQuoteSheetTitle(t *testing.T) {
	assert.Equal(t, "'Sales'", quoteSheetTitle("Sales"))
	assert.Equal(t, "'Bob''s tab'", quoteSheetTitle("Bob's tab"))
}

func TestRowCell(t *testing.T) {
	r := Row{"Widget", "10"}
	assert.Equal(t, "Widget", r.Cell(0))
	assert.Equal(t, "10", r.Cell(1))
	assert.Equal(t, "", r.Cell(2))
	assert.Equal(t, "", r.Cell(-1))
	assert.Equal(t, "", Row(nil).Cell(0))
}
