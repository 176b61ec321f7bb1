package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/papertrader/ledger"
)

var historyHeader = []string{"id", "seq", "time", "action", "symbol", "shares", "price", "total"}

// WriteHistoryCSV writes entries with a header row. Money columns keep full
// decimal precision.
func WriteHistoryCSV(w io.Writer, entries []ledger.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyHeader); err != nil {
		return err
	}
	for _, e := range entries {
		err := cw.Write([]string{
			e.ID,
			strconv.FormatInt(e.Seq, 10),
			e.Time.UTC().Format(time.RFC3339Nano),
			string(e.Action),
			e.Symbol,
			strconv.FormatInt(e.Shares, 10),
			e.Price.String(),
			e.Total.String(),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
