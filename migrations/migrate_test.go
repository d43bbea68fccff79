package migrations

import (
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourcePairsUpAndDown(t *testing.T) {
	src, err := iofs.New(Files, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, err := fs.Glob(Files, "*.up.sql")
	require.NoError(t, err)
	down, err := fs.Glob(Files, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, down, len(up))
}

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/fincore?sslmode=disable", driverURL("postgres://u:p@db:5432/fincore?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/fincore", driverURL("postgresql://u@db/fincore"))
	assert.Equal(t, "pgx5://already", driverURL("pgx5://already"))
}
