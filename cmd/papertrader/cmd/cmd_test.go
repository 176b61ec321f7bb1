package cmd

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args. Flag variables outlive a single
// Execute, so they are reset first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""
	tradeJSON, historyCSV = false, false
	portfolioStyle, historyStyle = "plain", "plain"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"API_KEY", "DATABASE_URL", "PAPERTRADER_KAFKA_BROKERS", "PAPERTRADER_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "cli.sqlite")
	cfg.Quotes.Static = map[string]decimal.Decimal{"AAA": decimal.NewFromInt(50)}
	cfg.Log.Level = "error"

	path := filepath.Join(dir, "papertrader.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "papertrader version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Store: sqlite")

	_, err = run(t, "config", "validate", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "validation failed")
}

func TestTradingSession(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "account", "create", "alice", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Created account alice with $10,000.00")

	_, err = run(t, "account", "create", "alice", "--config", cfg)
	assert.Error(t, err)

	out, err = run(t, "buy", "alice", "aaa", "10", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Bought 10 AAA at $50.00 (total $500.00)")
	assert.Contains(t, out, "Cash: $9,500.00")

	_, err = run(t, "sell", "alice", "AAA", "20", "--config", cfg)
	assert.ErrorIs(t, err, trade.ErrInsufficientShares)

	_, err = run(t, "buy", "alice", "AAA", "1.5", "--config", cfg)
	assert.ErrorIs(t, err, trade.ErrInvalidQuantity)

	out, err = run(t, "buy", "alice", "ZZZ", "1", "--json", "--config", cfg)
	assert.ErrorIs(t, err, trade.ErrUnknownSymbol)
	assert.Contains(t, out, `"error_kind": "UnknownSymbol"`)

	out, err = run(t, "sell", "alice", "AAA", "4", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Sold 4 AAA")
	assert.Contains(t, out, "Cash: $9,700.00")

	out, err = run(t, "portfolio", "alice", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "| AAA |")
	assert.Contains(t, out, "$9,700.00")

	out, err = run(t, "history", "alice", "--csv", "--config", cfg)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "BUY", rows[1][3])
	assert.Equal(t, "SELL", rows[2][3])

	out, err = run(t, "history", "alice", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "# History for alice")
}

func TestQuote(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "quote", "aaa", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "AAA (AAA): $50.00")

	_, err = run(t, "quote", "AAA", "ZZZ", "--config", cfg)
	assert.ErrorIs(t, err, trade.ErrUnknownSymbol)
}

func TestBadLogLevelFlag(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "quote", "AAA", "--config", cfg, "--log-level", "loud")
	assert.ErrorContains(t, err, "log.level")
}

func TestParseShares(t *testing.T) {
	n, err := parseShares(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	for _, s := range []string{"", "1.5", "ten", "1e3"} {
		_, err := parseShares(s)
		assert.ErrorIs(t, err, trade.ErrInvalidQuantity, s)
	}
}
