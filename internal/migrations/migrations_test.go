package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://app:secret@db:5432/grocery?sslmode=disable", driverURL("postgres://app:secret@db:5432/grocery?sslmode=disable"))
	require.Equal(t, "pgx5://db/grocery", driverURL("postgresql://db/grocery"))
	require.Equal(t, "pgx5://db/grocery", driverURL("pgx5://db/grocery"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestDiscountSchemaAllowsBogoWithoutValueType(t *testing.T) {
	data, err := fs.ReadFile(files, "sql/000001_discount_rules.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(data), "value_type IN ('PERCENTAGE', 'NOMINAL', '')")
	require.Contains(t, string(data), "UNIQUE (rule_id, order_id)")
}
