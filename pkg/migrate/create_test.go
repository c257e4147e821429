package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()
	clock = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { clock = time.Now })

	path, err := CreateSQLMigration(dir, "Add Return Window!")
	require.NoError(t, err)
	assert.Equal(t, "20260302100000_add_return_window.sql", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Down")
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "second")
	assert.ErrorContains(t, err, "already used")
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := CreateSQLMigration(t.TempDir(), " !! ")
	assert.Error(t, err)
}

func TestCheckAnnotationsRejectsDownBeforeUp(t *testing.T) {
	err := checkAnnotations("x.sql", "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Down before Up")

	err = checkAnnotations("x.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StatementBegin")
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestNewerThan(t *testing.T) {
	versions := []int64{20260301090000, 20260301090100, 20260301090200}
	assert.Equal(t, []int64{20260301090100, 20260301090200}, newerThan(versions, 20260301090000))
	assert.Empty(t, newerThan(versions, 20260301090200))
	assert.Len(t, newerThan(versions, 0), 3)
}
