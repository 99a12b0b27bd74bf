package rowsource

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	logx "salebot/pkg/logx"
)

// SheetsConfig addresses one worksheet through the Google Sheets API.
type SheetsConfig struct {
	// URL is the spreadsheet url or bare id.
	URL string
	// Worksheet is the tab title. Empty selects the first tab.
	Worksheet string
	// CredentialsFile is a service-account JSON key. Empty falls back to
	// application default credentials.
	CredentialsFile string
}

// Sheets reads all values of a worksheet. Read-only scope is enough.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	log           logx.Logger

	// resolved title of the first tab when Worksheet is empty
	titleMu sync.Mutex
	title   string
}

func NewSheets(ctx context.Context, cfg SheetsConfig, log logx.Logger) (*Sheets, error) {
	id, err := ParseSpreadsheetID(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	if f := strings.TrimSpace(cfg.CredentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: id,
		worksheet:     strings.TrimSpace(cfg.Worksheet),
		log:           log,
	}, nil
}

func (s *Sheets) FetchAll(ctx context.Context) ([]Row, error) {
	title, err := s.sheetTitle(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheetTitle(title)).
		MajorDimension("ROWS").
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets values.get %q: %w", title, err)
	}

	rows := make([]Row, 0, len(resp.Values))
	for _, vals := range resp.Values {
		r := make(Row, len(vals))
		for i, v := range vals {
			r[i] = fmt.Sprint(v)
		}
		rows = append(rows, r)
	}
	return padRows(rows), nil
}

// sheetTitle resolves the worksheet title once. The first tab is looked up
// through spreadsheet metadata because values.get needs a range.
func (s *Sheets) sheetTitle(ctx context.Context) (string, error) {
	if s.worksheet != "" {
		return s.worksheet, nil
	}
	s.titleMu.Lock()
	defer s.titleMu.Unlock()
	if s.title != "" {
		return s.title, nil
	}

	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties(title,index)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("sheets metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Index == 0 {
			s.title = sh.Properties.Title
			break
		}
	}
	if s.title == "" && len(ss.Sheets) > 0 && ss.Sheets[0].Properties != nil {
		s.title = ss.Sheets[0].Properties.Title
	}
	if s.title == "" {
		return "", fmt.Errorf("spreadsheet %s has no worksheets", s.spreadsheetID)
	}
	s.log.Debug("resolved first worksheet", logx.String("title", s.title))
	return s.title, nil
}

// quoteSheetTitle turns a tab title into an A1 range covering the whole tab.
func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
