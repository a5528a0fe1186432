package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleBoard = [][]string{
	{"Model", "Ordinal (Win rate)", "Cardinal (Score)", "Stress", "CFI"},
	{"alpha", "0.50", "0.61", "0.30", "0.9"},
	{"beta", "0.80", "0.72", "0.10", "0.8"},
	{"gamma", "0.65", "0.55", "0.20", "0.7"},
}

// modelOrder returns the first cell of every body row of a rendered table.
func modelOrder(t *testing.T, rendered string) []string {
	t.Helper()
	var names []string
	for _, line := range strings.Split(rendered, "\n") {
		cells := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
		if len(cells) == 0 {
			continue
		}
		first := strings.TrimSpace(cells[0])
		if first == "" || first == "Model" || strings.HasPrefix(first, "-") {
			continue
		}
		names = append(names, first)
	}
	return names
}

func TestFormatLeaderboard_DescendingByDefault(t *testing.T) {
	out, err := FormatLeaderboard(sampleBoard, LeaderboardQuery{})
	require.NoError(t, err)

	assert.Equal(t, []string{"beta", "gamma", "alpha"}, modelOrder(t, out))
}

func TestFormatLeaderboard_StressSortsAscending(t *testing.T) {
	out, err := FormatLeaderboard(sampleBoard, LeaderboardQuery{SortBy: "Stress", Columns: "all", TopN: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"beta", "gamma", "alpha"}, modelOrder(t, out))
	assert.Contains(t, out, "Stress")
}

func TestFormatLeaderboard_ColumnsKeepModel(t *testing.T) {
	out, err := FormatLeaderboard(sampleBoard, LeaderboardQuery{SortBy: "Cardinal (Score)", Columns: "Cardinal (Score), Bogus"})
	require.NoError(t, err)

	header := strings.Split(out, "\n")[0]
	assert.Contains(t, header, "Model")
	assert.Contains(t, header, "Cardinal (Score)")
	assert.NotContains(t, header, "Stress")
	assert.NotContains(t, header, "Bogus")
	assert.Less(t, strings.Index(header, "Model"), strings.Index(header, "Cardinal"))
}

func TestFormatLeaderboard_TopN(t *testing.T) {
	out, err := FormatLeaderboard(sampleBoard, LeaderboardQuery{TopN: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"beta"}, modelOrder(t, out))
}

func TestFormatLeaderboard_UnknownSortColumn(t *testing.T) {
	_, err := FormatLeaderboard(sampleBoard, LeaderboardQuery{SortBy: "Elo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Elo")
}

func TestLessCell(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		asc  bool
		want bool
	}{
		{"numeric ascending", "2", "10", true, true},
		{"numeric descending", "2", "10", false, false},
		{"number before text", "1", "n/a", false, true},
		{"text after number", "n/a", "1", true, false},
		{"empty last ascending", "", "1", true, false},
		{"empty last descending", "1", "", false, true},
		{"both empty", "", "", true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, lessCell(tc.a, tc.b, tc.asc))
		})
	}
}
