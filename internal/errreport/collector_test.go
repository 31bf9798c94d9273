package errreport

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/nt-accruals/internal/domain"
)

func TestCollector_FlushWritesRecordsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Error_Log.csv")
	c := NewCollector(path)

	c.Record("2026-10-15", "TIR34", "failed to retrieve data (status code: 500)")
	c.Record("2026-10-15", "TIR32", "create \"/out\": permission denied")

	written, err := c.Flush()
	require.NoError(t, err)
	assert.True(t, written)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Date", "Account", "Error"},
		{"2026-10-15", "TIR34", "failed to retrieve data (status code: 500)"},
		{"2026-10-15", "TIR32", "create \"/out\": permission denied"},
	}, rows)
}

func TestCollector_FlushEmptyLeavesFileAlone(t *testing.T) {
	t.Run("no file is created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Error_Log.csv")

		written, err := NewCollector(path).Flush()

		require.NoError(t, err)
		assert.False(t, written)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("existing report is not cleared", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Error_Log.csv")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

		_, err := NewCollector(path).Flush()
		require.NoError(t, err)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old", string(content))
	})
}

func TestCollector_FlushUnwritable(t *testing.T) {
	c := NewCollector(filepath.Join(t.TempDir(), "missing", "Error_Log.csv"))
	c.Record("2026-10-15", "TIR34", "boom")

	written, err := c.Flush()

	require.ErrorContains(t, err, "Flush")
	assert.False(t, written)
}

func TestCollector_RecordsIsACopy(t *testing.T) {
	c := NewCollector("unused")
	c.Record("d", "a", "e")

	recs := c.Records()
	recs[0].Error = "changed"

	assert.Equal(t, []domain.ErrorRecord{{Date: "d", Account: "a", Error: "e"}}, c.Records())
	assert.Equal(t, 1, c.Len())
}
