package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/mcpfunnel/config"
	"github.com/vinodismyname/mcpfunnel/internal/runtime"
	"github.com/vinodismyname/mcpfunnel/internal/workbooks"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrMissingColumn indicates a required column is absent from a table header.
	ErrMissingColumn = errors.New("dataset: missing column")
	// ErrTooManyRows indicates a table exceeds the configured row bound.
	ErrTooManyRows = errors.New("dataset: table exceeds row limit")
	// ErrEmptyTable indicates a table without a header row.
	ErrEmptyTable = errors.New("dataset: table has no header row")
	// ErrUnsupportedSource indicates a path that is neither a directory nor a workbook.
	ErrUnsupportedSource = errors.New("dataset: source must be a directory of CSV files or an .xlsx workbook")
)

// LoadError reports which table failed to load. Any LoadError aborts the whole
// snapshot; there is no partial analysis.
type LoadError struct {
	Table Table
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("dataset: load %s table from %s: %v", e.Table, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PathValidator resolves and authorizes a source path.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Loader reads a Snapshot from a CSV directory or an .xlsx workbook.
type Loader struct {
	Config    config.DatasetConfig
	Limits    runtime.Limits
	Workbooks *workbooks.Cache
	Validator PathValidator
	Clock     func() time.Time
}

// rawTable is a header plus string rows as read from the source.
type rawTable struct {
	header []string
	rows   [][]string
}

type tableReader func(ctx context.Context, t Table) (rawTable, string, error)

// Load reads all five tables from path and normalizes them.
func (l *Loader) Load(ctx context.Context, path string) (Snapshot, error) {
	logger := zerolog.Ctx(ctx)

	canonical := path
	if l.Validator != nil {
		c, err := l.Validator.ValidateOpenPath(path)
		if err != nil {
			return Snapshot{}, &LoadError{Table: TableUsers, Path: path, Err: err}
		}
		canonical = c
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return Snapshot{}, &LoadError{Table: TableUsers, Path: canonical, Err: err}
	}

	var read tableReader
	switch {
	case info.IsDir():
		read = l.csvReader(canonical)
	case workbooks.IsWorkbookPath(canonical):
		if l.Workbooks == nil {
			return Snapshot{}, &LoadError{Table: TableUsers, Path: canonical, Err: errors.New("dataset: no workbook cache configured")}
		}
		read = l.sheetReader(canonical)
	default:
		return Snapshot{}, &LoadError{Table: TableUsers, Path: canonical, Err: ErrUnsupportedSource}
	}

	snap := Snapshot{Source: canonical, LoadedAt: l.now()}
	for i, t := range VisitTables {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		raw, where, err := read(ctx, t)
		if err != nil {
			return Snapshot{}, &LoadError{Table: t, Path: where, Err: err}
		}
		ids, err := l.visitIDs(raw)
		if err != nil {
			return Snapshot{}, &LoadError{Table: t, Path: where, Err: err}
		}
		snap.Visits[i] = ids
		logger.Debug().Str("table", string(t)).Int("records", len(ids)).Msg("visit table loaded")
	}

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	raw, where, err := read(ctx, TableUsers)
	if err != nil {
		return Snapshot{}, &LoadError{Table: TableUsers, Path: where, Err: err}
	}
	reg, err := l.registry(raw)
	if err != nil {
		return Snapshot{}, &LoadError{Table: TableUsers, Path: where, Err: err}
	}
	snap.Users = reg
	if reg.Duplicates() > 0 {
		logger.Warn().Int("duplicates", reg.Duplicates()).Msg("duplicate user ids in registry; first row kept")
	}
	logger.Info().
		Str("source", canonical).
		Int("users", reg.Len()).
		Int("home", len(snap.Visits[0])).
		Int("confirmation", len(snap.Visits[3])).
		Msg("dataset loaded")
	return snap, nil
}

func (l *Loader) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

func (l *Loader) maxRows() int {
	if l.Limits.MaxRowsPerTable > 0 {
		return l.Limits.MaxRowsPerTable
	}
	return config.DefaultMaxRowsPerTable
}

func (l *Loader) fileName(t Table) string {
	f := l.Config.Files
	switch t {
	case TableHome:
		return orDefault(f.Home, config.DefaultHomeFile)
	case TableSearch:
		return orDefault(f.Search, config.DefaultSearchFile)
	case TablePayment:
		return orDefault(f.Payment, config.DefaultPaymentFile)
	case TableConfirmation:
		return orDefault(f.Confirmation, config.DefaultConfirmationFile)
	default:
		return orDefault(f.Users, config.DefaultUserFile)
	}
}

func (l *Loader) sheetName(t Table) string {
	s := l.Config.Sheets
	switch t {
	case TableHome:
		return orDefault(s.Home, config.DefaultHomeSheet)
	case TableSearch:
		return orDefault(s.Search, config.DefaultSearchSheet)
	case TablePayment:
		return orDefault(s.Payment, config.DefaultPaymentSheet)
	case TableConfirmation:
		return orDefault(s.Confirmation, config.DefaultConfirmationSheet)
	default:
		return orDefault(s.Users, config.DefaultUserSheet)
	}
}

func (l *Loader) columns() config.Columns {
	c := l.Config.Columns
	return config.Columns{
		UserID: orDefault(c.UserID, config.DefaultUserIDColumn),
		Device: orDefault(c.Device, config.DefaultDeviceColumn),
		Gender: orDefault(c.Gender, config.DefaultGenderColumn),
		Signup: orDefault(c.Signup, config.DefaultSignupColumn),
	}
}

func (l *Loader) csvReader(dir string) tableReader {
	comma := ','
	if d := l.Config.Delimiter; d != "" {
		r, _ := utf8.DecodeRuneInString(d)
		comma = r
	}
	return func(_ context.Context, t Table) (rawTable, string, error) {
		p := filepath.Join(dir, l.fileName(t))
		f, err := os.Open(p)
		if err != nil {
			return rawTable{}, p, err
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Comma = comma
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true

		var out rawTable
		header, err := r.Read()
		if err == io.EOF {
			return rawTable{}, p, ErrEmptyTable
		}
		if err != nil {
			return rawTable{}, p, err
		}
		out.header = header
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return rawTable{}, p, err
			}
			if len(out.rows) >= l.maxRows() {
				return rawTable{}, p, fmt.Errorf("%w (max=%d)", ErrTooManyRows, l.maxRows())
			}
			out.rows = append(out.rows, rec)
		}
		return out, p, nil
	}
}

func (l *Loader) sheetReader(path string) tableReader {
	return func(ctx context.Context, t Table) (rawTable, string, error) {
		sheet := l.sheetName(t)
		where := path + "#" + sheet
		var out rawTable
		err := l.Workbooks.View(ctx, path, func(f *excelize.File) error {
			rows, err := f.Rows(sheet)
			if err != nil {
				return err
			}
			defer rows.Close()
			first := true
			for rows.Next() {
				vals, err := rows.Columns()
				if err != nil {
					return err
				}
				if first {
					out.header = vals
					first = false
					continue
				}
				if len(out.rows) >= l.maxRows() {
					return fmt.Errorf("%w (max=%d)", ErrTooManyRows, l.maxRows())
				}
				out.rows = append(out.rows, vals)
			}
			if err := rows.Error(); err != nil {
				return err
			}
			if first {
				return ErrEmptyTable
			}
			return nil
		})
		return out, where, err
	}
}

func (l *Loader) visitIDs(raw rawTable) ([]string, error) {
	col := l.columns().UserID
	idx := columnIndex(raw.header, col)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}
	ids := make([]string, 0, len(raw.rows))
	for _, row := range raw.rows {
		if id := cell(row, idx); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *Loader) registry(raw rawTable) (*Registry, error) {
	cols := l.columns()
	idIdx := columnIndex(raw.header, cols.UserID)
	if idIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, cols.UserID)
	}
	devIdx := columnIndex(raw.header, cols.Device)
	genIdx := columnIndex(raw.header, cols.Gender)
	sigIdx := columnIndex(raw.header, cols.Signup)

	users := make([]User, 0, len(raw.rows))
	for _, row := range raw.rows {
		u := User{
			ID:     cell(row, idIdx),
			Device: cell(row, devIdx),
			Gender: cell(row, genIdx),
		}
		if sigIdx >= 0 {
			u.Signup, u.SignupValid = ParseDate(cell(row, sigIdx))
		}
		users = append(users, u)
	}
	return NewRegistry(users, Attributes{Device: devIdx >= 0, Gender: genIdx >= 0, Signup: sigIdx >= 0}), nil
}

// columnIndex finds name in header, ignoring case, surrounding space and a UTF-8 BOM.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
