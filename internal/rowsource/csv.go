package rowsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CSV reads a published CSV export of the sheet, e.g.
// https://docs.google.com/spreadsheets/d/<id>/export?format=csv&gid=0
// No credentials are involved; the sheet must be shared or published.
type CSV struct {
	url    string
	client *http.Client
}

func NewCSV(url string, client *http.Client) (*CSV, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("csv url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CSV{url: url, client: client}, nil
}

// ExportURL builds the CSV export url for a spreadsheet id and tab gid.
func ExportURL(spreadsheetID, gid string) string {
	u := "https://docs.google.com/spreadsheets/d/" + spreadsheetID + "/export?format=csv"
	if gid = strings.TrimSpace(gid); gid != "" {
		u += "&gid=" + gid
	}
	return u
}

func (c *CSV) FetchAll(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("csv export: http %d", resp.StatusCode)
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv export: %w", err)
		}
		rows = append(rows, Row(rec))
	}
	return trimTrailingEmpty(rows), nil
}

// trimTrailingEmpty drops fully empty rows at the end. The export pads the
// table with blank lines that the Sheets API would not report.
func trimTrailingEmpty(rows []Row) []Row {
	for len(rows) > 0 {
		last := rows[len(rows)-1]
		empty := true
		for _, c := range last {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if !empty {
			break
		}
		rows = rows[:len(rows)-1]
	}
	return rows
}
