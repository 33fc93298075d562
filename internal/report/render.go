package report

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ErrEmptyDeck indicates a deck without sections.
var ErrEmptyDeck = errors.New("report: deck has no sections")

const (
	defaultSheet = "Sheet1"
	chartAnchor  = "H2"
	textColWidth = 70
)

var chartTypes = map[ChartKind]excelize.ChartType{
	ChartColumn: excelize.Col,
	ChartBar:    excelize.Bar,
}

// Render writes every section to its own worksheet. Callers own the returned
// file and must Close it.
func Render(d Deck) (*excelize.File, error) {
	if len(d.Sections) == 0 {
		return nil, ErrEmptyDeck
	}
	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 18}})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return nil, err
	}

	for i, sec := range d.Sections {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sec.Sheet); err != nil {
				return nil, fmt.Errorf("report: sheet %q: %w", sec.Sheet, err)
			}
		} else if _, err := f.NewSheet(sec.Sheet); err != nil {
			return nil, fmt.Errorf("report: sheet %q: %w", sec.Sheet, err)
		}
		if err := renderSection(f, sec, titleStyle, headerStyle); err != nil {
			return nil, fmt.Errorf("report: section %q: %w", sec.Title, err)
		}
	}
	f.SetActiveSheet(0)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       d.Title,
		Subject:     d.Subtitle,
		Identifier:  d.RunID,
		Creator:     "mcpfunnel",
		Description: "generated " + d.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
	}); err != nil {
		return nil, err
	}
	ok = true
	return f, nil
}

func renderSection(f *excelize.File, sec Section, titleStyle, headerStyle int) error {
	sh := sec.Sheet
	if err := f.SetColWidth(sh, "A", "A", textColWidth); err != nil {
		return err
	}
	if err := f.SetCellValue(sh, "A1", sec.Title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, "A1", "A1", titleStyle); err != nil {
		return err
	}

	row := 2
	if sec.Lead != "" {
		if err := f.SetCellValue(sh, cell(1, row), sec.Lead); err != nil {
			return err
		}
		row++
	}
	for _, b := range sec.Bullets {
		text := "• " + b.Text
		if b.Level > 0 {
			text = "  - " + b.Text
		}
		if err := f.SetCellValue(sh, cell(1, row), text); err != nil {
			return err
		}
		row++
	}

	if sec.Table == nil {
		return nil
	}
	top := row + 1
	header := make([]any, len(sec.Table.Header))
	for i, h := range sec.Table.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sh, cell(1, top), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, cell(1, top), cell(len(header), top), headerStyle); err != nil {
		return err
	}
	for i, r := range sec.Table.Rows {
		vals := r
		if err := f.SetSheetRow(sh, cell(1, top+1+i), &vals); err != nil {
			return err
		}
	}
	if sec.Chart == nil || len(sec.Table.Rows) == 0 {
		return nil
	}
	return addChart(f, sh, *sec.Chart, len(sec.Table.Header), top, top+len(sec.Table.Rows))
}

// addChart plots the chart's series columns; rows top+1..bottom hold data and
// column 1 holds categories.
func addChart(f *excelize.File, sh string, spec ChartSpec, cols, top, bottom int) error {
	kind, ok := chartTypes[spec.Kind]
	if !ok {
		return fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}
	chart := &excelize.Chart{
		Type:     kind,
		Title:    []excelize.RichTextRun{{Text: spec.Title}},
		Legend:   excelize.ChartLegend{Position: "bottom"},
		PlotArea: excelize.ChartPlotArea{ShowVal: true},
	}
	for _, c := range spec.Series {
		if c < 1 || c >= cols {
			return fmt.Errorf("chart series column %d out of range", c)
		}
		chart.Series = append(chart.Series, excelize.ChartSeries{
			Name:       ref(sh, c+1, top, c+1, top),
			Categories: ref(sh, 1, top+1, 1, bottom),
			Values:     ref(sh, c+1, top+1, c+1, bottom),
		})
	}
	if len(chart.Series) == 1 {
		chart.Legend.Position = "none"
	}
	return f.AddChart(sh, chartAnchor, chart)
}

// Write renders d as an xlsx stream.
func Write(w io.Writer, d Deck) error {
	f, err := Render(d)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// WriteFile renders d and saves it at path.
func WriteFile(ctx context.Context, d Deck, path string) error {
	logger := zerolog.Ctx(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := Render(d)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	logger.Info().Str("path", path).Int("sections", len(d.Sections)).Str("run_id", d.RunID).Msg("report written")
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func ref(sh string, c1, r1, c2, r2 int) string {
	from, _ := excelize.CoordinatesToCellName(c1, r1, true)
	to, _ := excelize.CoordinatesToCellName(c2, r2, true)
	if from == to {
		return fmt.Sprintf("'%s'!%s", sh, from)
	}
	return fmt.Sprintf("'%s'!%s:%s", sh, from, to)
}
