package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"depenses/internal/core"
	ports "depenses/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultIndexTTL = 5 * time.Minute

// Config selects the spreadsheet and the service account used to reach it.
// With neither CredentialsJSON nor CredentialsFile set, Application Default
// Credentials are used.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// valuesAPI is the slice of the Sheets values API the client needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, values [][]any) error
	BatchUpdate(ctx context.Context, data []*gsheet.ValueRange) error
	BatchClear(ctx context.Context, ranges []string) error
}

// Client mirrors expenses into one sheet, one row per expense with the ID in
// column A. Writes are serialised; the ID to row index is cached for
// cacheValidDuration and rebuilt from column A when stale.
type Client struct {
	values    valuesAPI
	sheetName string

	mu                 sync.Mutex
	index              map[string]int
	free               []int
	end                int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&serviceValues{svc: svc, spreadsheetID: cfg.SpreadsheetID}, cfg.SheetName), nil
}

func newClient(values valuesAPI, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Expenses"
	}
	return &Client{
		values:             values,
		sheetName:          sheetName,
		cacheValidDuration: defaultIndexTTL,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}

	switch {
	case cfg.CredentialsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		opts = append(opts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		opts = append(opts, goption.WithCredentialsJSON(raw))
	default:
		slog.InfoContext(ctx, "No service account configured, using application default credentials")
	}

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.quotedSheet(), row, ports.LastColumn, row)
}

func (c *Client) quotedSheet() string {
	return "'" + strings.ReplaceAll(c.sheetName, "'", "''") + "'"
}

// Upsert writes e on its existing row, or on the first free row.
func (c *Client) Upsert(ctx context.Context, e core.Expense) error {
	if e.ID == "" {
		return fmt.Errorf("upsert: %w: expense without id", core.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	row, exists := c.index[e.ID]
	if !exists {
		row = c.takeFreeRow()
	}
	if err := c.values.Update(ctx, c.rowRange(row), [][]any{ports.Row(e)}); err != nil {
		c.invalidateIndex()
		return fmt.Errorf("write row %d in sheet %s: %w", row, c.sheetName, err)
	}
	c.index[e.ID] = row

	slog.DebugContext(ctx, "Expense exported", "id", e.ID, "row", row, "new", !exists)
	return nil
}

// Remove blanks the row of id. Unknown IDs are ignored.
func (c *Client) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndex(ctx); err != nil {
		return err
	}
	row, ok := c.index[id]
	if !ok {
		return nil
	}
	if err := c.values.BatchClear(ctx, []string{c.rowRange(row)}); err != nil {
		c.invalidateIndex()
		return fmt.Errorf("clear row %d in sheet %s: %w", row, c.sheetName, err)
	}
	delete(c.index, id)
	c.free = append(c.free, row)
	sort.Ints(c.free)
	return nil
}

func (c *Client) RenameLabel(ctx context.Context, oldLabel, newLabel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	col := string(rune('A' + ports.ColLabel))
	var data []*gsheet.ValueRange
	for i, r := range rows {
		if i == 0 || ports.Cell(r, ports.ColID) == "" || ports.Cell(r, ports.ColLabel) != oldLabel {
			continue
		}
		data = append(data, &gsheet.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", c.quotedSheet(), col, i+1),
			Values: [][]any{{newLabel}},
		})
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.values.BatchUpdate(ctx, data); err != nil {
		return fmt.Errorf("rename label in sheet %s: %w", c.sheetName, err)
	}
	slog.InfoContext(ctx, "Label renamed in sheet", "from", oldLabel, "to", newLabel, "rows", len(data))
	return nil
}

func (c *Client) RemoveLabel(ctx context.Context, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	var ranges []string
	for i, r := range rows {
		if i == 0 || ports.Cell(r, ports.ColID) == "" || ports.Cell(r, ports.ColLabel) != label {
			continue
		}
		ranges = append(ranges, c.rowRange(i+1))
	}
	if len(ranges) == 0 {
		return nil
	}
	c.invalidateIndex()
	if err := c.values.BatchClear(ctx, ranges); err != nil {
		return fmt.Errorf("remove label in sheet %s: %w", c.sheetName, err)
	}
	return nil
}

// ReplaceAll rewrites the sheet from scratch: header, then records in order.
func (c *Client) ReplaceAll(ctx context.Context, records []core.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateIndex()

	if err := c.values.BatchClear(ctx, []string{fmt.Sprintf("%s!A:%s", c.quotedSheet(), ports.LastColumn)}); err != nil {
		return fmt.Errorf("clear sheet %s: %w", c.sheetName, err)
	}
	values := make([][]any, 0, len(records)+1)
	values = append(values, ports.Header)
	for _, e := range records {
		values = append(values, ports.Row(e))
	}
	rng := fmt.Sprintf("%s!A1:%s%d", c.quotedSheet(), ports.LastColumn, len(values))
	if err := c.values.Update(ctx, rng, values); err != nil {
		return fmt.Errorf("write sheet %s: %w", c.sheetName, err)
	}
	slog.InfoContext(ctx, "Sheet rewritten", "sheet", c.sheetName, "rows", len(records))
	return nil
}

func (c *Client) readRows(ctx context.Context) ([][]any, error) {
	rows, err := c.values.Get(ctx, fmt.Sprintf("%s!A:%s", c.quotedSheet(), ports.LastColumn))
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", c.sheetName, err)
	}
	return rows, nil
}

// loadIndex rebuilds the ID index from column A when the cache is stale and
// writes the header on an empty sheet. Callers hold c.mu.
func (c *Client) loadIndex(ctx context.Context) error {
	if c.index != nil && time.Now().Before(c.cacheExpiresAt) {
		return nil
	}
	ids, err := c.values.Get(ctx, fmt.Sprintf("%s!A:A", c.quotedSheet()))
	if err != nil {
		return fmt.Errorf("read ids from sheet %s: %w", c.sheetName, err)
	}
	if len(ids) == 0 || ports.Cell(ids[0], 0) != ports.Header[0] {
		if err := c.values.Update(ctx, fmt.Sprintf("%s!A1:%s1", c.quotedSheet(), ports.LastColumn), [][]any{ports.Header}); err != nil {
			return fmt.Errorf("write header in sheet %s: %w", c.sheetName, err)
		}
		if len(ids) == 0 {
			ids = [][]any{{ports.Header[0]}}
		}
	}

	c.index = make(map[string]int, len(ids))
	c.free = c.free[:0]
	for i := 1; i < len(ids); i++ {
		id := ports.Cell(ids[i], 0)
		if id == "" {
			c.free = append(c.free, i+1)
			continue
		}
		c.index[id] = i + 1
	}
	c.end = len(ids) + 1
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return nil
}

func (c *Client) takeFreeRow() int {
	if len(c.free) > 0 {
		row := c.free[0]
		c.free = c.free[1:]
		return row
	}
	row := c.end
	c.end++
	return row
}

func (c *Client) invalidateIndex() {
	c.index = nil
	c.cacheExpiresAt = time.Time{}
}

type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) Update(ctx context.Context, rng string, values [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *serviceValues) BatchUpdate(ctx context.Context, data []*gsheet.ValueRange) error {
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

func (s *serviceValues) BatchClear(ctx context.Context, ranges []string) error {
	_, err := s.svc.Spreadsheets.Values.BatchClear(s.spreadsheetID, &gsheet.BatchClearValuesRequest{
		Ranges: ranges,
	}).Context(ctx).Do()
	return err
}
