package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	pg, err := Load(Postgres)
	require.NoError(t, err)
	require.Len(t, pg, 2)
	assert.Equal(t, "001_trade_results", pg[0].Version)
	assert.Equal(t, "002_approval_events", pg[1].Version)
	for _, m := range pg {
		assert.NotEmpty(t, m.Statements, m.Version)
	}

	ch, err := Load(Clickhouse)
	require.NoError(t, err)
	require.Len(t, ch, 1)
	assert.Equal(t, "001_probe_samples", ch[0].Version)
	assert.Len(t, ch[0].Statements, 1)
	assert.Contains(t, ch[0].Statements[0], "CREATE TABLE IF NOT EXISTS probe_samples")
}

func TestLoad_UnknownDialect(t *testing.T) {
	_, err := Load(Dialect("sqlite"))
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	input := `
-- comment; ignored
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (y String DEFAULT 'a;b', z String DEFAULT 'it''s'); -- trailing
`
	stmts, err := splitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String DEFAULT 'a;b', z String DEFAULT 'it''s')", stmts[1])
}

func TestSplitStatements_NoTrailingSemicolon(t *testing.T) {
	stmts, err := splitStatements("SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1"}, stmts)
}

func TestSplitStatements_Rejects(t *testing.T) {
	_, err := splitStatements("SELECT 'open;")
	assert.Error(t, err)

	_, err = splitStatements("/* x; */ SELECT 1;")
	assert.Error(t, err)
}
