package monitor

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/folio-labs/journey/internal/cache"
	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/database"
	"github.com/folio-labs/journey/internal/geo"
	"github.com/folio-labs/journey/internal/logging"
	"github.com/folio-labs/journey/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the sqlite manager prepares statements into gorm's LRU, whose janitor never exits
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("gorm.io/gorm/internal/lru.NewLRU[...].func1"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGetStatus(t *testing.T) {
	sessions := &cache.SafeCounter{}
	sessions.Set(3)
	tracks := cache.NewTrackCache()
	_, err := tracks.Get(geo.DefaultLayout(), 4)
	require.NoError(t, err)
	_, err = tracks.Get(geo.DefaultLayout(), 4)
	require.NoError(t, err)

	s := NewService(Dependencies{Sessions: sessions, Tracks: tracks})
	out, status := s.GetStatus()

	assert.Equal(t, 3, status.ActiveSessions)
	assert.Equal(t, model.CacheStats{Entries: 1, Hits: 1, Misses: 1}, status.TrackCache)

	var decoded model.ServerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 3, decoded.ActiveSessions)
}

func TestStartStop_WritesStatusFile(t *testing.T) {
	dir := t.TempDir()
	buf := &syncBuffer{}
	sessions := &cache.SafeCounter{}
	sessions.Inc()

	s := NewService(Dependencies{
		Logger:    slog.New(slog.NewJSONHandler(buf, nil)),
		Sessions:  sessions,
		StatusDir: dir,
		Interval:  10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	path := filepath.Join(dir, StatusFileName)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			return false
		}
		var st model.ServerStatus
		return json.Unmarshal(data, &st) == nil && st.ActiveSessions == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Contains(t, buf.String(), `"msg":"Server status"`)
}

func TestTick_PersistsStatus(t *testing.T) {
	mgr := database.NewManager(logging.NewZerolog(&bytes.Buffer{}, "error", "database"), config.GormConfig{
		SqlitePath:  filepath.Join(t.TempDir(), "status.db"),
		AutoMigrate: true,
	})
	require.NoError(t, mgr.ConnectLocal())
	require.NoError(t, mgr.Setup())
	t.Cleanup(func() { _ = mgr.Close() })

	s := NewService(Dependencies{DB: mgr.DB, Tracks: cache.NewTrackCache()})
	s.tick(nil)
	s.tick(nil)

	var count int64
	require.NoError(t, mgr.DB.Model(&model.ServerStatus{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
