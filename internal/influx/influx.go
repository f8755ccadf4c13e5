package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names written to the analytics bucket.
const (
	MeasurementMilestoneReached = "milestone_reached"
	MeasurementSession          = "scroll_session"
)

// ErrDisabled is returned by Connect when analytics are turned off.
var ErrDisabled = errors.New("influx analytics disabled")

// Manager handles InfluxDB connections and writes. When the server cannot be
// reached, points go to a gzipped line-protocol backup file instead.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
	errorsDone chan struct{}
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Logger: log,
		cfg:    cfg,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("Failed to reach InfluxDB, writing to backup file")
		m.Client.Close()
		m.Client = nil
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return fmt.Errorf("influx unreachable and no backup path configured")
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 180,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	m.errorsDone = make(chan struct{})

	errorsCh := m.Writer.Errors()
	go func() {
		defer close(m.errorsDone)
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// WritePoint writes a point to InfluxDB or the backup file. Without either
// the point is dropped silently, so analytics never block scrolling.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.IsValid && m.Writer != nil:
		m.Writer.WritePoint(point)
	case m.BackupWriter != nil:
		lineProtocol := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
		if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// RecordMilestoneReached writes a milestone_reached point.
func (m *Manager) RecordMilestoneReached(session string, index int, ms core.Milestone, at time.Time) error {
	return m.WritePoint(MilestonePoint(session, index, ms, at))
}

// RecordSession writes the summary of a finished scroll session.
func (m *Manager) RecordSession(session string, milestones int, reached int, maxProgress float64, duration time.Duration, end time.Time) error {
	return m.WritePoint(SessionPoint(session, milestones, reached, maxProgress, duration, end))
}

// Close flushes and releases the client or the backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Client != nil {
		if m.Writer != nil {
			m.Writer.Flush()
		}
		m.Client.Close()
		m.Client = nil
		if m.errorsDone != nil {
			<-m.errorsDone
		}
	}
	m.IsValid = false

	if m.BackupWriter != nil {
		err := m.BackupWriter.Close()
		m.BackupWriter = nil
		if cerr := m.backupFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("close backup file: %w", err)
		}
	}
	return nil
}

// MilestonePoint builds the point recorded when a visitor's marker reaches
// milestone index.
func MilestonePoint(session string, index int, ms core.Milestone, at time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementMilestoneReached,
		map[string]string{
			"session": session,
			"company": ms.Company,
		},
		map[string]interface{}{
			"index": index,
			"role":  ms.Role,
		},
		at,
	)
}

// SessionPoint builds the point recorded when a scroll session ends.
func SessionPoint(session string, milestones int, reached int, maxProgress float64, duration time.Duration, end time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementSession,
		map[string]string{"session": session},
		map[string]interface{}{
			"milestones":   milestones,
			"reached":      reached,
			"max_progress": maxProgress,
			"duration_ms":  duration.Milliseconds(),
		},
		end,
	)
}
