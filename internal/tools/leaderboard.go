package tools

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	// DefaultTopN is the row limit when the caller does not pass one.
	DefaultTopN = 15

	DefaultSortColumn = "Ordinal (Win rate)"
	identityColumn    = "Model"
)

// LeaderboardColumns are the sortable columns of the leaderboard CSV.
var LeaderboardColumns = []string{
	"Model", "Ordinal (Win rate)", "Cardinal (Score)", "RO Stability", "Stress", "CFI", "SRMR", "RMSEA",
}

// lowerIsBetter lists metrics ranked ascending.
var lowerIsBetter = map[string]bool{
	"Stress": true,
	"SRMR":   true,
	"RMSEA":  true,
}

type LeaderboardQuery struct {
	SortBy  string
	Columns string // "all" or a comma separated list
	TopN    int
}

// FormatLeaderboard ranks CSV records (header first) and renders them as a
// markdown table.
func FormatLeaderboard(records [][]string, q LeaderboardQuery) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no data")
	}
	header, rows := records[0], records[1:]

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = DefaultSortColumn
	}
	sortIdx := indexOf(header, sortBy)
	if sortIdx < 0 {
		return "", fmt.Errorf("column '%s' not found", sortBy)
	}

	ranked := make([][]string, len(rows))
	copy(ranked, rows)
	asc := lowerIsBetter[sortBy]
	sort.SliceStable(ranked, func(i, j int) bool {
		return lessCell(cell(ranked[i], sortIdx), cell(ranked[j], sortIdx), asc)
	})

	cols := selectColumns(header, q.Columns)

	topN := q.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = header[c]
	}
	out := make([][]string, len(ranked))
	for i, row := range ranked {
		projected := make([]string, len(cols))
		for j, c := range cols {
			projected[j] = cell(row, c)
		}
		out[i] = projected
	}

	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(headers...).
		Rows(out...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String(), nil
}

// selectColumns returns the header indexes named by a comma-separated list. The identity column is
// prepended when missing; unknown names are ignored.
func selectColumns(header []string, wanted string) []int {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" || strings.EqualFold(wanted, "all") {
		all := make([]int, len(header))
		for i := range header {
			all[i] = i
		}
		return all
	}

	var selected []string
	for _, name := range strings.Split(wanted, ",") {
		selected = append(selected, strings.TrimSpace(name))
	}
	if indexOf(selected, identityColumn) < 0 {
		selected = append([]string{identityColumn}, selected...)
	}

	var cols []int
	for _, name := range selected {
		if i := indexOf(header, name); i >= 0 {
			cols = append(cols, i)
		}
	}
	return cols
}

// lessCell orders numbers numerically, then text, then empty cells last
// regardless of direction.
func lessCell(a, b string, asc bool) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return a != "" && b == ""
	}

	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if asc {
			return fa < fb
		}
		return fa > fb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	if asc {
		return a < b
	}
	return a > b
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
