// Package influx writes link statistics to InfluxDB, falling back to a
// gzip line-protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/tm-proximity/linkbridge/internal/config"
	"github.com/tm-proximity/linkbridge/internal/link"
)

const (
	retention     = 30 * 24 * time.Hour
	batchSize     = 200
	flushInterval = 2000 // ms
)

var (
	// ErrDisabled is returned by Connect when influx.enabled is false.
	ErrDisabled = errors.New("influx is disabled")
	// ErrNotConnected is returned by WritePoint before Connect or after Close.
	ErrNotConnected = errors.New("influx sink not connected")
)

type sink interface {
	write(p *influxdb2_write.Point) error
	close() error
}

// remoteSink batches points through the client's non-blocking write API.
type remoteSink struct {
	api influxdb2_api.WriteAPI
}

func (s remoteSink) write(p *influxdb2_write.Point) error {
	s.api.WritePoint(p)
	return nil
}

func (s remoteSink) close() error {
	s.api.Flush()
	return nil
}

// backupSink appends line protocol to a gzip file.
type backupSink struct {
	file *os.File
	gz   *gzip.Writer
}

func openBackup(path string) (*backupSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open influx backup: %w", err)
	}
	return &backupSink{file: f, gz: gzip.NewWriter(f)}, nil
}

func (s *backupSink) write(p *influxdb2_write.Point) error {
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := s.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write influx backup: %w", err)
	}
	return nil
}

func (s *backupSink) close() error {
	return errors.Join(s.gz.Close(), s.file.Close())
}

// Manager owns the InfluxDB client and whichever sink Connect chose.
type Manager struct {
	cfg config.InfluxConfig
	log zerolog.Logger

	mu     sync.Mutex
	client influxdb2.Client
	sink   sink
	remote bool
}

// NewManager creates a Manager. Nothing is contacted until Connect.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{cfg: cfg, log: log}
}

func (m *Manager) serverURL() string {
	return fmt.Sprintf("%s://%s", m.cfg.Protocol, net.JoinHostPort(m.cfg.Host, m.cfg.Port))
}

// Connect picks the sink: the InfluxDB bucket when the server answers a
// ping, the backup file otherwise.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(m.serverURL(), m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushInterval))

	up, err := client.Ping(ctx)
	if err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("url", m.serverURL()).Str("backup", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing statistics to backup file")
		backup, berr := openBackup(m.cfg.BackupPath)
		if berr != nil {
			return berr
		}
		m.install(nil, backup, false)
		return nil
	}

	if err := m.ensureBucket(ctx, client); err != nil {
		client.Close()
		return err
	}
	api := client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go m.logWriteErrors(api.Errors())
	m.install(client, remoteSink{api: api}, true)
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("Writing statistics to InfluxDB")
	return nil
}

func (m *Manager) install(client influxdb2.Client, s sink, remote bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
	m.sink = s
	m.remote = remote
}

// ensureBucket creates the organisation and bucket on first use.
func (m *Manager) ensureBucket(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Creating InfluxDB organisation")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("create influx org %q: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", m.cfg.Bucket).Dur("retention", retention).Msg("Creating InfluxDB bucket")
	expire := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("create influx bucket %q: %w", m.cfg.Bucket, err)
	}
	return nil
}

func (m *Manager) logWriteErrors(errs <-chan error) {
	for err := range errs {
		m.log.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("InfluxDB write failed")
	}
}

// Remote reports whether points go to the server rather than the backup.
func (m *Manager) Remote() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// WritePoint hands p to the active sink.
func (m *Manager) WritePoint(p *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return ErrNotConnected
	}
	return m.sink.write(p)
}

// Close flushes the sink and releases the client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.sink != nil {
		err = m.sink.close()
		m.sink = nil
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.remote = false
	return err
}

// LinkStatsPoint builds the "link_stats" measurement from an adapter
// snapshot.
func LinkStatsPoint(stats link.Stats, state, sessionID string, at time.Time) *influxdb2_write.Point {
	connected := 0
	if stats.Connected {
		connected = 1
	}
	return influxdb2.NewPoint(
		"link_stats",
		map[string]string{"session": sessionID, "state": state},
		map[string]any{
			"connected":  connected,
			"updates":    stats.Updates,
			"failures":   stats.Failures,
			"reconnects": stats.Reconnects,
			"nonce":      int64(stats.Nonce),
		},
		at,
	)
}
