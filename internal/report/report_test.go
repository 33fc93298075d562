package report

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/mcpfunnel/internal/dataset"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/xuri/excelize/v2"
)

func analyzed(t *testing.T) *funnel.Result {
	t.Helper()
	signup := func(s string) time.Time {
		d, ok := dataset.ParseDate(s)
		require.True(t, ok)
		return d
	}
	reg := dataset.NewRegistry([]dataset.User{
		{ID: "1", Device: "Desktop", Gender: "Female", Signup: signup("2015-04-30"), SignupValid: true},
		{ID: "2", Device: "Mobile", Gender: "Male", Signup: signup("2015-04-29"), SignupValid: true},
		{ID: "3", Device: "Mobile", Gender: "Female", Signup: signup("2015-01-10"), SignupValid: true},
		{ID: "4", Device: "Desktop", Gender: "Male", Signup: signup("2015-02-01"), SignupValid: true},
		{ID: "5", Device: "Mobile", Gender: "Female", Signup: signup("2015-04-28"), SignupValid: true},
	}, dataset.Attributes{Device: true, Gender: true, Signup: true})
	snap := dataset.Snapshot{
		Source: "test",
		Visits: dataset.Visits{{"1", "2", "3", "4", "5"}, {"2", "3", "4"}, {"3", "4"}, {"4"}},
		Users:  reg,
	}
	res, err := funnel.Analyze(zerolog.Nop().WithContext(context.Background()), snap, funnel.DefaultOptions())
	require.NoError(t, err)
	return res
}

func recs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "rec"
	}
	return out
}

func sheets(d Deck) []string {
	var out []string
	for _, s := range d.Sections {
		out = append(out, s.Sheet)
	}
	return out
}

func TestBuildDeck_SectionOrder(t *testing.T) {
	d := BuildDeck(analyzed(t), []string{"insight"}, recs(7))
	require.Equal(t, DeckTitle, d.Title)
	require.Equal(t, []string{
		SheetTitle, SheetOverview, SheetFunnel, SheetConversion, SheetDropOff,
		SheetDevice, SheetGender, SheetUserType, SheetInsights, SheetRecommendations, SheetConclusion,
	}, sheets(d))

	last := d.Sections[len(d.Sections)-1]
	require.Equal(t, "Key Actions to Improve Conversion:", last.Lead)
	require.Len(t, last.Bullets, 5)
}

func TestBuildDeck_RecommendationsContinue(t *testing.T) {
	d := BuildDeck(analyzed(t), nil, recs(9))
	var first, cont *Section
	for i := range d.Sections {
		switch d.Sections[i].Sheet {
		case SheetRecommendations:
			first = &d.Sections[i]
		case SheetRecommendations2:
			cont = &d.Sections[i]
		}
	}
	require.NotNil(t, first)
	require.NotNil(t, cont)
	require.Len(t, first.Bullets, 7)
	require.Len(t, cont.Bullets, 2)
	require.Equal(t, "Strategic Recommendations (Continued)", cont.Title)
}

func TestBuildDeck_OverviewAndRates(t *testing.T) {
	d := BuildDeck(analyzed(t), nil, nil)

	overview := d.Sections[1]
	require.Equal(t, []Bullet{
		{Text: "Home → Search → Payment → Confirmation"},
		{Text: "Overall conversion rate: 20.0%"},
		{Text: "5 total users analyzed"},
		{Text: "New users: 3 (60.0%)"},
	}, overview.Bullets)

	conv := d.Sections[3]
	require.Equal(t, "Home to Search: 60.0%", conv.Bullets[0].Text)
	require.Equal(t, "Search to Payment: 66.67%", conv.Bullets[1].Text)
	require.Equal(t, "Payment to Confirmation: 50.0%", conv.Bullets[2].Text)
	require.Equal(t, "Overall (Home to Confirmation): 20.0%", conv.Bullets[3].Text)

	drop := d.Sections[4]
	require.Equal(t, "Home to Search: 40.0% (2 users)", drop.Bullets[0].Text)

	device := d.Sections[5]
	require.Equal(t, "Desktop: 50.0% overall conversion", device.Bullets[0].Text)
	require.Equal(t, 1, device.Bullets[1].Level)
	require.Len(t, device.Table.Rows, 2)
}

func TestBuildDeck_MissingSegmentation(t *testing.T) {
	res := analyzed(t)
	delete(res.Segments, funnel.SegmentGender)
	res.SegmentErrors = map[string]string{"gender": "funnel: attribute column absent from registry: gender"}

	d := BuildDeck(res, nil, nil)
	gender := d.Sections[6]
	require.Equal(t, SheetGender, gender.Sheet)
	require.Nil(t, gender.Table)
	require.Contains(t, gender.Bullets[0].Text, "attribute column absent")
}

func TestBuildDeck_NilResult(t *testing.T) {
	d := BuildDeck(nil, nil, nil)
	require.Empty(t, d.Sections)
	_, err := Render(d)
	require.ErrorIs(t, err, ErrEmptyDeck)
}

func TestRender_WritesSheetsAndTables(t *testing.T) {
	d := BuildDeck(analyzed(t), []string{"insight"}, recs(8))
	f, err := Render(d)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, sheets(d), f.GetSheetList())

	title, err := f.GetCellValue(SheetFunnel, "A1")
	require.NoError(t, err)
	require.Equal(t, "Funnel Analysis", title)

	// No lead or bullets: header on row 3, Home on row 4.
	hdr, err := f.GetCellValue(SheetFunnel, "B3")
	require.NoError(t, err)
	require.Equal(t, "Users", hdr)
	home, err := f.GetCellValue(SheetFunnel, "A4")
	require.NoError(t, err)
	require.Equal(t, "Home", home)
	users, err := f.GetCellValue(SheetFunnel, "B4")
	require.NoError(t, err)
	require.Equal(t, "5", users)

	bullet, err := f.GetCellValue(SheetInsights, "A2")
	require.NoError(t, err)
	require.Equal(t, "• insight", bullet)
}

func TestRender_RejectsBadSeries(t *testing.T) {
	d := Deck{Sections: []Section{{
		Title: "x", Sheet: "X",
		Table: &Table{Header: []string{"a", "b"}, Rows: [][]any{{"r", 1}}},
		Chart: &ChartSpec{Kind: ChartColumn, Series: []int{5}},
	}}}
	_, err := Render(d)
	require.Error(t, err)
}

func TestWriteFileAndWrite(t *testing.T) {
	d := BuildDeck(analyzed(t), nil, recs(3))
	path := filepath.Join(t.TempDir(), "deck.xlsx")
	require.NoError(t, WriteFile(context.Background(), d, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Contains(t, f.GetSheetList(), SheetConclusion)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, d))
	require.Greater(t, buf.Len(), 0)
}
