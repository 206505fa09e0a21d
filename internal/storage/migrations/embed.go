// Package migrations ships the SQL schema of every store and applies it.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var files embed.FS

// Dialect names a directory of migrations.
type Dialect string

const (
	Postgres   Dialect = "postgres"
	Clickhouse Dialect = "clickhouse"
)

// Migration is one embedded SQL file split into statements.
type Migration struct {
	// Version is the file name without extension, e.g. "001_trade_results".
	Version    string
	Statements []string
}

// Load returns the migrations of d ordered by version.
func Load(d Dialect) ([]Migration, error) {
	entries, err := fs.ReadDir(files, string(d))
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", d, err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(files, string(d)+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		stmts, err := splitStatements(string(data))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		if len(stmts) == 0 {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(name, ".sql"), Statements: stmts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// splitStatements splits on semicolons outside single-quoted literals and
// drops -- comments. Block comments are not supported.
func splitStatements(sql string) ([]string, error) {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inString:
			cur.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
					continue
				}
				inString = false
			}
		case ch == '\'':
			inString = true
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			return nil, fmt.Errorf("block comments are not supported")
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return stmts, nil
}
