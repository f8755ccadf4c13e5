package database

import (
	"database/sql"
	"fmt"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager handles database connections for the content store.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	SqliteFilePath  string
	Logger          zerolog.Logger

	cfg config.GormConfig
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger, cfg config.GormConfig) *Manager {
	return &Manager{
		Logger:         log,
		SqliteFilePath: cfg.SqlitePath,
		cfg:            cfg,
	}
}

// Connect opens Postgres. When that fails and local fallback is enabled it
// opens SQLite at SqliteFilePath instead, in memory when the path is empty.
func (m *Manager) Connect() error {
	var err error

	m.DB, err = m.GetPostgresDB()
	if err == nil {
		m.SqlDB, err = m.DB.DB()
		if err == nil {
			err = m.SqlDB.Ping()
		}
	}

	if err != nil {
		if !m.cfg.FallbackLocal {
			m.IsValid = false
			return fmt.Errorf("failed to connect to Postgres DB: %w", err)
		}
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		if err := m.connectLocal(); err != nil {
			return err
		}
	} else {
		m.Logger.Info().Msg("Connected to database")
		m.SqlDB.SetMaxOpenConns(10)
	}

	m.IsValid = true
	return nil
}

func (m *Manager) connectLocal() error {
	m.ShouldSaveLocal = true
	db, err := m.GetSqliteDB(m.SqliteFilePath)
	if err != nil || db == nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.DB = db
	m.SqlDB, err = db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return nil
}

// ConnectLocal skips Postgres and opens SQLite directly.
func (m *Manager) ConnectLocal() error {
	if err := m.connectLocal(); err != nil {
		return err
	}
	m.IsValid = true
	return nil
}

// GetPostgresDB returns a connection to the Postgres database.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().
		Str("host", viper.GetString("db.host")).
		Str("database", viper.GetString("db.database")).
		Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses an in-memory database.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		m.IsValid = false
		return nil, err
	}
	if path != "" {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using local SQLite DB in memory")
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// Setup migrates the schema when auto migration is enabled and creates the
// timeline info row if it does not exist.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return fmt.Errorf("db not connected")
	}
	if !m.cfg.AutoMigrate {
		m.Logger.Info().Msg("Schema migration disabled")
		return nil
	}

	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(&model.TimelineInfo{}); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate timeline_infos: %w", err)
	}
	if err := m.DB.Table(m.table()).AutoMigrate(&model.Experience{}); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate %s: %w", m.table(), err)
	}
	if err := m.DB.AutoMigrate(&model.ServerStatus{}); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate server_statuses: %w", err)
	}

	var count int64
	if err := m.DB.Model(&model.TimelineInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count timeline_infos: %w", err)
	}
	if count == 0 {
		err := m.DB.Create(&model.TimelineInfo{
			OwnerName: "journey",
			Headline:  "Experience",
		}).Error
		if err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to create timeline_infos entry: %w", err)
		}
	}

	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}

func (m *Manager) table() string {
	if m.cfg.Table == "" {
		return (&model.Experience{}).TableName()
	}
	return m.cfg.Table
}
