package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	dbconfig "codeduel/pkg/database"
	"codeduel/pkg/types"
)

const (
	defaultRetryDelay   = 5 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Manager is the sqlite-backed match result ledger. Reads run concurrently
// on the pool; every write goes through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       zerolog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	retryDelay   time.Duration
	writeTimeout time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database at config.DatabasePath and starts the writer.
func NewManager(config *dbconfig.Config, logger zerolog.Logger) (*Manager, error) {
	if config.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With().Str("component", "database").Logger(),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   defaultRetryDelay,
		writeTimeout: defaultWriteTimeout,
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop runs every write. A failed write is retried once after retryDelay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("database write failed, retrying")
				time.Sleep(m.retryDelay)
				if err = op.operation(m.db); err != nil {
					m.logger.Error().Err(err).Msg("database write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(m.writeTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrShuttingDown
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrShuttingDown
	}
}

// RecordMatch stores a finished match.
func (m *Manager) RecordMatch(ctx context.Context, result *types.MatchResult) error {
	if result == nil {
		return ErrNilResult
	}

	var startedAt sql.NullTime
	if !result.StartedAt.IsZero() {
		startedAt = sql.NullTime{Time: result.StartedAt.UTC(), Valid: true}
	}

	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO match_results
				(id, room_id, winner, opponent, problem_slug, topic, difficulty, reason, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			result.ID,
			result.RoomID,
			result.Winner,
			result.Opponent,
			result.ProblemSlug,
			result.Topic,
			string(result.Difficulty),
			result.Reason,
			startedAt,
			result.EndedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}
		return nil
	})
}

// RecentMatches returns up to limit results, newest first.
func (m *Manager) RecentMatches(ctx context.Context, limit int) ([]*types.MatchResult, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, room_id, winner, opponent, problem_slug, topic, difficulty, reason, started_at, ended_at
		FROM match_results
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]*types.MatchResult, 0, limit)
	for rows.Next() {
		var (
			r          types.MatchResult
			difficulty string
			startedAt  sql.NullTime
		)
		err := rows.Scan(
			&r.ID,
			&r.RoomID,
			&r.Winner,
			&r.Opponent,
			&r.ProblemSlug,
			&r.Topic,
			&difficulty,
			&r.Reason,
			&startedAt,
			&r.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match result row: %w", err)
		}
		r.Difficulty = types.Difficulty(difficulty)
		if startedAt.Valid {
			r.StartedAt = startedAt.Time
		}
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match result rows: %w", err)
	}

	return results, nil
}

// HealthCheck pings the database and reads from the ledger table.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM match_results").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the database. Calling it twice is safe.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
