package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/transit-flow/internal/database"
)

func TestWriteHistory(t *testing.T) {
	h := History{Known: 3, Future: 2, Taps: func(int, time.Time) int { return 2 }}
	dir := WriteHistory(t, h)

	flow, err := os.ReadFile(filepath.Join(dir, "flow.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(flow)), "\n")
	assert.Len(t, lines, 1+3*2)
	assert.Equal(t, "2021-03-01,Central", lines[1])
	assert.Equal(t, "2021-03-01,Harbor", lines[2])

	feats, err := os.ReadFile(filepath.Join(dir, "features.csv"))
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(string(feats)), "\n")
	require.Len(t, rows, 1+5)
	assert.Equal(t, "2021-03-01,1,3,1,Rain,13,2", rows[1])
	assert.Equal(t, "2021-03-05,5,3,0,Sunny,13,", rows[5])

	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), h.Day(3))
}

func TestNewRedis(t *testing.T) {
	mr, cfg := NewRedis(t)
	client, err := database.NewRedisConnection(cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
