package utilities

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawLogAppendsDailyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := NewRawLog(dir)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 10, 2, 3, 0, time.UTC) }

	require.NoError(t, l.Write("ALLTRACKINGS", "(027044702512BP00000027044702512HSO)"))
	require.NoError(t, l.Write("ALLTRACKINGS", "second"))

	b, err := os.ReadFile(filepath.Join(dir, "ALLTRACKINGS_20240501.log"))
	require.NoError(t, err)
	assert.Equal(t, "10:02:03 - (027044702512BP00000027044702512HSO)\n10:02:03 - second\n", string(b))
}

func TestDisabledRawLog(t *testing.T) {
	var nilLog *RawLog
	assert.False(t, nilLog.Enabled())
	assert.NoError(t, nilLog.Write("X", "y"))
	assert.NoError(t, NewRawLog("").Write("X", "y"))
}
