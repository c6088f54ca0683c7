package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-proximity/linkbridge/internal/config"
	"github.com/tm-proximity/linkbridge/internal/link"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NotInitialized(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Bucket: "b"})
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "backup.gzip")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Bucket:     "link_performance",
		BackupPath: backup,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.Remote())

	at := time.Unix(1700000000, 0)
	stats := link.Stats{Connected: true, Updates: 10, Failures: 1, Reconnects: 2, Nonce: 3}
	require.NoError(t, m.WritePoint(LinkStatsPoint(stats, "Serving", "abc", at)))
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.WritePoint(influxdb2_write.NewPointWithMeasurement("x")), ErrNotConnected)

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	sc := bufio.NewScanner(zr)
	require.True(t, sc.Scan())
	line := sc.Text()
	assert.True(t, strings.HasPrefix(line, "link_stats,session=abc,state=Serving "), line)
	assert.Contains(t, line, "updates=10i")
	assert.Contains(t, line, "connected=1i")
	assert.True(t, strings.HasSuffix(line, " 1700000000000000000"), line)
}

func TestLinkStatsPoint(t *testing.T) {
	p := LinkStatsPoint(link.Stats{}, "AwaitingLink", "s", time.Now())
	assert.Equal(t, "link_stats", p.Name())
	assert.Len(t, p.TagList(), 2)
	assert.Len(t, p.FieldList(), 5)
}
