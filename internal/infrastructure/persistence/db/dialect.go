package db

import (
	"strconv"
	"strings"
)

// Dialect normalizes statement text for one of the two supported
// engines. Statements in this package are written once with the neutral
// `?` placeholder; the dialect rewrites it for the target engine.
// Upserts are written as conflict-aware inserts with an explicit column
// update list, which both engines accept natively.
type Dialect interface {
	// Name identifies the engine ("sqlite3" or "postgres")
	Name() string

	// Rewrite converts neutral `?` placeholders to the engine's syntax
	Rewrite(query string) string
}

// sqliteDialect uses `?` natively; statements pass through unchanged.
type sqliteDialect struct{}

func (sqliteDialect) Name() string                { return "sqlite3" }
func (sqliteDialect) Rewrite(query string) string { return query }

// postgresDialect rewrites `?` to ordinal `$1..$n` placeholders.
// The schema here never needs a literal `?` inside a statement, so a
// plain character scan is sufficient.
type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rewrite(query string) string {
	if !strings.ContainsRune(query, '?') {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
