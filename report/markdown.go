package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/portfolio"
)

const timeLayout = "2006-01-02 15:04:05"

// PortfolioMarkdown renders a valuation as a holdings table followed by the
// cash, total and return summary.
func PortfolioMarkdown(v portfolio.Valuation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Portfolio for %s\n\n", v.UserID)

	if len(v.Lines) == 0 {
		b.WriteString("_No holdings._\n\n")
	} else {
		table(&b,
			[]string{"Symbol", "Name", "Shares", "Price", "Value"},
			[]bool{false, false, true, true, true},
			portfolioRows(v.Lines),
		)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "- **Stocks:** %s\n", USD(v.TotalStockValue))
	fmt.Fprintf(&b, "- **Cash:** %s\n", USD(v.Cash))
	fmt.Fprintf(&b, "- **Total:** %s\n", USD(v.Total))
	fmt.Fprintf(&b, "- **Return:** %s%%\n", v.PercentReturn.StringFixed(2))
	if len(v.Unavailable) > 0 {
		fmt.Fprintf(&b, "\n> Quotes unavailable for %s; excluded from totals.\n", strings.Join(v.Unavailable, ", "))
	}
	return b.String()
}

func portfolioRows(lines []portfolio.Line) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		price, value := "n/a", "n/a"
		if l.Available {
			price, value = USD(l.Price), USD(l.Value)
		}
		rows = append(rows, []string{
			l.Symbol,
			l.Name,
			fmt.Sprintf("%d", l.Shares),
			price,
			value,
		})
	}
	return rows
}

// HistoryMarkdown renders ledger entries oldest first.
func HistoryMarkdown(userID string, entries []ledger.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# History for %s\n\n", userID)
	if len(entries) == 0 {
		b.WriteString("_No trades yet._\n")
		return b.String()
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Time.UTC().Format(timeLayout),
			string(e.Action),
			e.Symbol,
			fmt.Sprintf("%d", e.Shares),
			USD(e.Price),
			USD(e.Total),
		})
	}
	table(&b,
		[]string{"Time (UTC)", "Action", "Symbol", "Shares", "Price", "Total"},
		[]bool{false, false, false, true, true, true},
		rows,
	)
	return b.String()
}

// table writes a GitHub-flavoured markdown table. right[i] aligns column i
// to the right.
func table(b *strings.Builder, header []string, right []bool, rows [][]string) {
	b.WriteString("| " + strings.Join(escapeCells(header), " | ") + " |\n")

	b.WriteString("|")
	for i := range header {
		if i < len(right) && right[i] {
			b.WriteString(" ---: |")
		} else {
			b.WriteString(" --- |")
		}
	}
	b.WriteString("\n")

	for _, row := range rows {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

// AsOf is a footer line naming when a report was produced.
func AsOf(t time.Time) string {
	return fmt.Sprintf("_As of %s UTC._\n", t.UTC().Format(timeLayout))
}
