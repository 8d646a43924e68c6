package ledger

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The integration suite needs a container to catch a column drift between
// the store SQL and the DDL, so this check runs against the migration file
// directly and fails fast anywhere.
func TestEntryColumnsExistInSchema(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok)

	schema, err := os.ReadFile(filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations", "schema.sql"))
	require.NoError(t, err)

	table := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS transaction \((.*?)\);`).
		FindStringSubmatch(string(schema))
	require.Len(t, table, 2, "transaction table not found in schema.sql")

	defined := map[string]bool{}
	for _, line := range strings.Split(table[1], "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			defined[strings.TrimSuffix(fields[0], ",")] = true
		}
	}

	for _, col := range strings.FieldsFunc(entryColumns, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		require.Truef(t, defined[col], "store column %q missing from transaction table", col)
	}
}
