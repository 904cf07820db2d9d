package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/KerlyLaeda/relaxbot/pkg/economy"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	usernameColumn   = "Username"
	defaultSheetName = "Sheet1"

	errorOperationSheet = "sheet"
	errorSubjectRow     = "row"
	errorSubjectColumn  = "column"
	errorSubjectValues  = "values"
	errorCodeRead       = "read"
	errorCodeWrite      = "write"
	errorCodeMissing    = "missing"
	errorCodeParse      = "parse"
)

// valuesAPI is the slice of the Sheets values surface the Store needs. The
// production implementation wraps sheets/v4; tests stub it.
type valuesAPI interface {
	Get(ctx context.Context, readRange string) ([][]interface{}, error)
	Update(ctx context.Context, cellRange string, value interface{}) error
}

// Store adapts one Google Sheets tab to the economy.Store contract. It
// performs no retries of its own; the consistency layer owns retry policy so
// it can reason about idempotence per operation.
type Store struct {
	values    valuesAPI
	sheetName string
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSheetName selects a tab other than the default first sheet.
func WithSheetName(name string) Option {
	return func(store *Store) {
		if strings.TrimSpace(name) != "" {
			store.sheetName = name
		}
	}
}

// WithLogger wires a zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(store *Store) {
		if logger != nil {
			store.logger = logger
		}
	}
}

// New connects to the spreadsheet using a service-account credentials file.
func New(ctx context.Context, spreadsheetID string, credentialsFile string, options ...Option) (*Store, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("sheet store: spreadsheet id is required")
	}
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return newWithValues(&sheetsValues{service: service, spreadsheetID: spreadsheetID}, options...), nil
}

func newWithValues(values valuesAPI, options ...Option) *Store {
	store := &Store{
		values:    values,
		sheetName: defaultSheetName,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// ReadField returns one numeric column of the user's row.
func (store *Store) ReadField(ctx context.Context, username string, field economy.FieldName) (int64, error) {
	grid, err := store.fetch(ctx)
	if err != nil {
		return 0, err
	}
	columnIndex, err := grid.column(field.String())
	if err != nil {
		return 0, err
	}
	rowIndex, err := grid.rowFor(username)
	if err != nil {
		return 0, err
	}
	value, err := grid.cellValue(rowIndex, columnIndex)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// WriteField overwrites one numeric column of the user's row. All other
// columns are preserved untouched. Rows are never created here.
func (store *Store) WriteField(ctx context.Context, username string, field economy.FieldName, value int64) error {
	grid, err := store.fetch(ctx)
	if err != nil {
		return err
	}
	columnIndex, err := grid.column(field.String())
	if err != nil {
		return err
	}
	rowIndex, err := grid.rowFor(username)
	if err != nil {
		return err
	}
	cellRange := fmt.Sprintf("%s!%s%d", store.sheetName, columnLetters(columnIndex), rowIndex+1)
	if err := store.values.Update(ctx, cellRange, value); err != nil {
		return mapAPIError(errorSubjectValues, errorCodeWrite, err)
	}
	store.logger.Debug("sheet cell updated",
		zap.String("username", username),
		zap.String("field", field.String()),
		zap.Int64("value", value))
	return nil
}

// Locate resolves a username to its row handle.
func (store *Store) Locate(ctx context.Context, username string) (economy.Row, error) {
	grid, err := store.fetch(ctx)
	if err != nil {
		return economy.Row{}, err
	}
	rowIndex, err := grid.rowFor(username)
	if err != nil {
		return economy.Row{}, err
	}
	return economy.Row{Username: username, Index: rowIndex + 1}, nil
}

func (store *Store) fetch(ctx context.Context) (*grid, error) {
	rows, err := store.values.Get(ctx, store.sheetName)
	if err != nil {
		return nil, mapAPIError(errorSubjectValues, errorCodeRead, err)
	}
	return newGrid(rows)
}

// mapAPIError translates Sheets API failures into the adapter's error
// taxonomy: a missing spreadsheet needs operator action, everything else is
// treated as a transient outage.
func mapAPIError(subject string, code string, err error) error {
	var apiError *googleapi.Error
	if errors.As(err, &apiError) {
		switch {
		case apiError.Code == http.StatusNotFound, apiError.Code == http.StatusForbidden:
			return economy.WrapError(errorOperationSheet, subject, code,
				fmt.Errorf("%w: %v", economy.ErrResourceMissing, err))
		}
	}
	return economy.WrapError(errorOperationSheet, subject, code,
		fmt.Errorf("%w: %v", economy.ErrStoreUnavailable, err))
}

// sheetsValues is the production valuesAPI over sheets/v4.
type sheetsValues struct {
	service       *sheets.Service
	spreadsheetID string
}

func (values *sheetsValues) Get(ctx context.Context, readRange string) ([][]interface{}, error) {
	response, err := values.service.Spreadsheets.Values.Get(values.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return response.Values, nil
}

func (values *sheetsValues) Update(ctx context.Context, cellRange string, value interface{}) error {
	payload := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := values.service.Spreadsheets.Values.
		Update(values.spreadsheetID, cellRange, payload).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// columnLetters converts a zero-based column index to its A1 letters.
func columnLetters(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}

// grid is one fetched snapshot of the sheet, header row included.
type grid struct {
	header []string
	rows   [][]interface{}
}

func newGrid(rows [][]interface{}) (*grid, error) {
	if len(rows) == 0 {
		return nil, economy.WrapError(errorOperationSheet, errorSubjectValues, errorCodeMissing,
			fmt.Errorf("%w: sheet has no header row", economy.ErrResourceMissing))
	}
	header := make([]string, 0, len(rows[0]))
	for _, cell := range rows[0] {
		header = append(header, strings.TrimSpace(fmt.Sprint(cell)))
	}
	return &grid{header: header, rows: rows}, nil
}

// column resolves a header name to its zero-based index.
func (grid *grid) column(name string) (int, error) {
	for index, headerName := range grid.header {
		if headerName == name {
			return index, nil
		}
	}
	return 0, economy.WrapError(errorOperationSheet, errorSubjectColumn, errorCodeMissing,
		fmt.Errorf("%w: column %q not in header", economy.ErrResourceMissing, name))
}

// rowFor finds the zero-based row index for a username, matched
// case-insensitively against the Username column.
func (grid *grid) rowFor(username string) (int, error) {
	usernameIndex, err := grid.column(usernameColumn)
	if err != nil {
		return 0, err
	}
	needle := strings.ToLower(strings.TrimSpace(username))
	for index := 1; index < len(grid.rows); index++ {
		row := grid.rows[index]
		if usernameIndex >= len(row) {
			continue
		}
		cell := strings.ToLower(strings.TrimSpace(fmt.Sprint(row[usernameIndex])))
		if cell == needle {
			return index, nil
		}
	}
	return 0, economy.WrapError(errorOperationSheet, errorSubjectRow, errorCodeMissing,
		fmt.Errorf("%w: no row for %q", economy.ErrRecordNotFound, username))
}

// cellValue parses the numeric cell at the given coordinates. An empty or
// missing cell reads as zero, matching a user who has not been granted the
// column yet.
func (grid *grid) cellValue(rowIndex int, columnIndex int) (int64, error) {
	row := grid.rows[rowIndex]
	if columnIndex >= len(row) {
		return 0, nil
	}
	switch cell := row[columnIndex].(type) {
	case float64:
		return int64(cell), nil
	case int64:
		return cell, nil
	case int:
		return int64(cell), nil
	case string:
		trimmed := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
		if trimmed == "" {
			return 0, nil
		}
		value, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			// Corrupt data does not heal on retry; it needs an operator.
			return 0, economy.WrapError(errorOperationSheet, errorSubjectValues, errorCodeParse,
				fmt.Errorf("%w: cell %q is not an integer", economy.ErrResourceMissing, cell))
		}
		return value, nil
	default:
		return 0, economy.WrapError(errorOperationSheet, errorSubjectValues, errorCodeParse,
			fmt.Errorf("%w: unsupported cell type %T", economy.ErrResourceMissing, cell))
	}
}
