// Package report turns an analysis result into the exported slide-style deck:
// a fixed sequence of sections rendered as worksheets with embedded charts.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/vinodismyname/mcpfunnel/internal/funnel"
)

const (
	DeckTitle    = "E-commerce Funnel Analysis"
	DeckSubtitle = "Identifying Conversion Issues and Improvement Strategies"

	// recommendationsPerSection caps the first recommendations section; the
	// remainder spills into a continuation section.
	recommendationsPerSection = 7
)

// Sheet names, one per section in deck order.
const (
	SheetTitle            = "Title"
	SheetOverview         = "Overview"
	SheetFunnel           = "Funnel"
	SheetConversion       = "Conversion"
	SheetDropOff          = "DropOff"
	SheetDevice           = "Device"
	SheetGender           = "Gender"
	SheetUserType         = "NewVsExisting"
	SheetInsights         = "Insights"
	SheetRecommendations  = "Recommendations"
	SheetRecommendations2 = "Recommendations2"
	SheetConclusion       = "Conclusion"
)

// Deck is the presentation-neutral form of the report.
type Deck struct {
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Section is one slide of the deck.
type Section struct {
	Title   string     `json:"title"`
	Sheet   string     `json:"sheet"`
	Lead    string     `json:"lead,omitempty"`
	Bullets []Bullet   `json:"bullets,omitempty"`
	Table   *Table     `json:"table,omitempty"`
	Chart   *ChartSpec `json:"chart,omitempty"`
}

// Bullet is a line of text; Level 1 renders as a sub-point.
type Bullet struct {
	Text  string `json:"text"`
	Level int    `json:"level,omitempty"`
}

// Table holds the data behind a section's chart. Column 0 carries categories.
type Table struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

type ChartKind string

const (
	ChartColumn ChartKind = "column"
	ChartBar    ChartKind = "bar"
)

// ChartSpec plots the listed table columns against the category column.
type ChartSpec struct {
	Kind   ChartKind `json:"kind"`
	Title  string    `json:"title"`
	Series []int     `json:"series"`
}

var conclusionActions = []string{
	"Focus on optimizing the biggest drop-off point in the funnel",
	"Implement specific strategies for new users to improve their conversion",
	"Consider device-specific optimizations, especially for mobile users",
	"Implement A/B testing to continuously improve the conversion funnel",
	"Set up a monitoring system to track improvements over time",
}

// BuildDeck lays out the report sections. It does not touch r.
func BuildDeck(r *funnel.Result, insights, recommendations []string) Deck {
	d := Deck{Title: DeckTitle, Subtitle: DeckSubtitle}
	if r == nil {
		return d
	}
	d.RunID = r.RunID
	d.GeneratedAt = r.GeneratedAt

	d.Sections = append(d.Sections,
		Section{Title: DeckTitle, Sheet: SheetTitle, Lead: DeckSubtitle},
		overviewSection(r),
		funnelSection(r.Overall.Funnel),
		conversionSection(r),
		dropOffSection(r.Overall.DropOff),
		segmentSection("Device Comparison", SheetDevice, r, funnel.SegmentDevice),
		segmentSection("Gender Comparison", SheetGender, r, funnel.SegmentGender),
		userTypeSection(r.UserType),
		textSection("Key Insights", SheetInsights, insights),
	)

	first, rest := recommendations, []string(nil)
	if len(recommendations) > recommendationsPerSection {
		first, rest = recommendations[:recommendationsPerSection], recommendations[recommendationsPerSection:]
	}
	d.Sections = append(d.Sections, textSection("Strategic Recommendations", SheetRecommendations, first))
	if len(rest) > 0 {
		d.Sections = append(d.Sections, textSection("Strategic Recommendations (Continued)", SheetRecommendations2, rest))
	}

	conclusion := textSection("Conclusion", SheetConclusion, conclusionActions)
	conclusion.Lead = "Key Actions to Improve Conversion:"
	d.Sections = append(d.Sections, conclusion)
	return d
}

func overviewSection(r *funnel.Result) Section {
	share := 0.0
	if r.UserCounts.Total > 0 {
		share = math.Round(float64(r.UserCounts.New)/float64(r.UserCounts.Total)*1000) / 10
	}
	bullets := []Bullet{
		{Text: "Home → Search → Payment → Confirmation"},
		{Text: fmt.Sprintf("Overall conversion rate: %s%%", funnel.FormatRate(r.Overall.ConversionRate))},
		{Text: fmt.Sprintf("%d total users analyzed", r.UserCounts.Total)},
		{Text: fmt.Sprintf("New users: %d (%s%%)", r.UserCounts.New, funnel.FormatRate(share))},
	}
	if r.UserCounts.Unknown > 0 {
		bullets = append(bullets, Bullet{Text: fmt.Sprintf("Users without a valid signup date: %d", r.UserCounts.Unknown)})
	}
	return Section{
		Title:   "Overview",
		Sheet:   SheetOverview,
		Lead:    "Analysis of the e-commerce conversion funnel:",
		Bullets: bullets,
	}
}

func funnelSection(t funnel.FunnelTable) Section {
	tbl := &Table{Header: []string{"Stage", "Users", "Conversion Rate (%)", "Drop-off Rate (%)"}}
	for _, row := range t {
		tbl.Rows = append(tbl.Rows, []any{row.Stage, row.Users, row.ConversionRate, row.DropOffRate})
	}
	return Section{
		Title: "Funnel Analysis",
		Sheet: SheetFunnel,
		Table: tbl,
		Chart: &ChartSpec{Kind: ChartColumn, Title: "User Funnel", Series: []int{1}},
	}
}

func conversionSection(r *funnel.Result) Section {
	s := Section{Title: "Conversion Rates Between Stages", Sheet: SheetConversion}
	tbl := &Table{Header: []string{"Transition", "Conversion Rate (%)"}}
	for i, row := range r.Overall.Funnel[1:] {
		name := funnel.TransitionName(funnel.Stage(i))
		s.Bullets = append(s.Bullets, Bullet{Text: fmt.Sprintf("%s: %s%%", name, funnel.FormatRate(row.ConversionRate))})
		tbl.Rows = append(tbl.Rows, []any{name, row.ConversionRate})
	}
	s.Bullets = append(s.Bullets, Bullet{Text: fmt.Sprintf("Overall (Home to Confirmation): %s%%", funnel.FormatRate(r.Overall.ConversionRate))})
	s.Table = tbl
	s.Chart = &ChartSpec{Kind: ChartBar, Title: "Stage Conversion Rates", Series: []int{1}}
	return s
}

func dropOffSection(t funnel.DropOffTable) Section {
	s := Section{Title: "Drop-off Analysis", Sheet: SheetDropOff}
	tbl := &Table{Header: []string{"Transition", "Users Lost", "Drop-off (%)"}}
	for _, row := range t {
		s.Bullets = append(s.Bullets, Bullet{Text: fmt.Sprintf("%s: %s%% (%d users)", row.Transition, funnel.FormatRate(row.Percentage), row.Count)})
		tbl.Rows = append(tbl.Rows, []any{row.Transition, row.Count, row.Percentage})
	}
	s.Table = tbl
	s.Chart = &ChartSpec{Kind: ChartColumn, Title: "Drop-off by Transition", Series: []int{2}}
	return s
}

func segmentSection(title, sheet string, r *funnel.Result, key funnel.SegmentKey) Section {
	s := Section{Title: title, Sheet: sheet}
	segs, ok := r.Segment(key)
	if !ok {
		msg := "segmentation not computed"
		if e, found := r.SegmentErrors[string(key)]; found {
			msg = e
		}
		s.Bullets = []Bullet{{Text: fmt.Sprintf("Unavailable: %s", msg)}}
		return s
	}
	tbl := comparisonTable("Segment")
	for _, k := range segs.Keys() {
		s.Bullets = append(s.Bullets, cohortBullets(k, segs[k].Funnel, segs[k].OverallConversion)...)
		tbl.Rows = append(tbl.Rows, comparisonRow(k, segs[k].Funnel, segs[k].OverallConversion))
	}
	s.Table = tbl
	s.Chart = &ChartSpec{Kind: ChartColumn, Title: title, Series: []int{1, 2, 3, 4}}
	return s
}

func userTypeSection(u funnel.UserType) Section {
	tbl := comparisonTable("User Type")
	tbl.Rows = [][]any{
		comparisonRow("New Users", u.New.Funnel, u.New.OverallConversion),
		comparisonRow("Existing Users", u.Existing.Funnel, u.Existing.OverallConversion),
	}
	bullets := cohortBullets("New Users", u.New.Funnel, u.New.OverallConversion)
	bullets = append(bullets, cohortBullets("Existing Users", u.Existing.Funnel, u.Existing.OverallConversion)...)
	return Section{
		Title:   "New vs Existing Users",
		Sheet:   SheetUserType,
		Bullets: bullets,
		Table:   tbl,
		Chart:   &ChartSpec{Kind: ChartColumn, Title: "New vs Existing Users", Series: []int{1, 2, 3, 4}},
	}
}

func textSection(title, sheet string, lines []string) Section {
	s := Section{Title: title, Sheet: sheet}
	for _, l := range lines {
		s.Bullets = append(s.Bullets, Bullet{Text: l})
	}
	return s
}

func comparisonTable(label string) *Table {
	header := []string{label, "Overall (%)"}
	for s := funnel.Home; s < funnel.Confirmation; s++ {
		header = append(header, funnel.TransitionName(s)+" (%)")
	}
	return &Table{Header: header}
}

func comparisonRow(label string, t funnel.FunnelTable, overall float64) []any {
	return []any{label, overall, t[funnel.Search].ConversionRate, t[funnel.Payment].ConversionRate, t[funnel.Confirmation].ConversionRate}
}

func cohortBullets(label string, t funnel.FunnelTable, overall float64) []Bullet {
	out := []Bullet{{Text: fmt.Sprintf("%s: %s%% overall conversion", label, funnel.FormatRate(overall))}}
	for s := funnel.Search; s <= funnel.Confirmation; s++ {
		out = append(out, Bullet{
			Text:  fmt.Sprintf("%s: %s%%", funnel.TransitionName(s-1), funnel.FormatRate(t[s].ConversionRate)),
			Level: 1,
		})
	}
	return out
}
