package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	dbconfig "trueinterview/pkg/database"
	"trueinterview/pkg/interfaces"
	"trueinterview/pkg/types"
)

// History listing bounds
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

const (
	defaultRetryDelay = 5 * time.Second
	syncWriteTimeout  = 30 * time.Second
	asyncWriteTimeout = 10 * time.Second
)

// Manager archives room lifecycle summaries in sqlite.
// It implements interfaces.RoomArchive for the gateway and
// interfaces.ArchiveReader for the HTTP side channel.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	done         chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
}

// writeOperation represents a database write operation.
// result is nil for fire-and-forget writes.
type writeOperation struct {
	name      string
	operation func(ctx context.Context, db *sql.DB) error
	timeout   time.Duration
	result    chan error
}

// NewManager opens the archive, applies pragmas and migrations, and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, config.WriteQueueSize),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		retryDelay:   defaultRetryDelay,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	logrus.WithField("path", config.DatabasePath).Info("Room archive opened")
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.done)

	for {
		select {
		case op := <-m.writeChannel:
			m.run(op)

		case <-m.shutdown:
			// Drain what was queued before Close so lifecycle records are not lost
			for {
				select {
				case op := <-m.writeChannel:
					m.run(op)
				default:
					logrus.Debug("Database write loop shutting down")
					return
				}
			}
		}
	}
}

func (m *Manager) run(op writeOperation) {
	err := m.attempt(op)
	// FUNCTIONAL DISCOVERY: Retry exactly once after a delay; a missing row will not appear by retrying
	if err != nil && !errors.Is(err, interfaces.ErrRecordNotFound) {
		logrus.WithError(err).WithField("operation", op.name).Warn("Database write failed, retrying")
		time.Sleep(m.retryDelay)
		err = m.attempt(op)
	}
	if err != nil {
		logrus.WithError(err).WithField("operation", op.name).Error("Database write failed")
	}
	if op.result != nil {
		op.result <- err
	}
}

func (m *Manager) attempt(op writeOperation) error {
	ctx, cancel := context.WithTimeout(context.Background(), op.timeout)
	defer cancel()
	return op.operation(ctx, m.db)
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// executeWrite queues a write operation and waits for completion or ctx
func (m *Manager) executeWrite(ctx context.Context, name string, operation func(context.Context, *sql.DB) error) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	result := make(chan error, 1)
	op := writeOperation{name: name, operation: operation, timeout: syncWriteTimeout, result: result}

	select {
	case m.writeChannel <- op:
		select {
		case err := <-result:
			return err
		case <-m.done:
			// The loop may have finished op just before exiting
			select {
			case err := <-result:
				return err
			default:
				return ErrManagerClosed
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrWriteTimeout, ctx.Err())
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrWriteTimeout, ctx.Err())
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// enqueue queues a write without waiting
// TECHNICAL DISCOVERY: the room hot path never blocks on disk; a full queue drops the record
func (m *Manager) enqueue(name string, fields logrus.Fields, operation func(context.Context, *sql.DB) error) {
	if m.isClosed() {
		logrus.WithFields(fields).WithField("operation", name).Debug("Archive closed, record dropped")
		return
	}

	select {
	case m.writeChannel <- writeOperation{name: name, operation: operation, timeout: asyncWriteTimeout}:
	default:
		logrus.WithFields(fields).WithField("operation", name).WithError(ErrWriteQueueFull).Warn("Archive record dropped")
	}
}

// RecordRoomCreated archives a room creation asynchronously
func (m *Manager) RecordRoomCreated(roomID string, createdAt time.Time) {
	if roomID == "" {
		logrus.WithError(ErrInvalidRecordID).Warn("Archive record dropped")
		return
	}
	m.enqueue("create_room", logrus.Fields{"room_id": roomID}, func(ctx context.Context, db *sql.DB) error {
		return insertRoom(ctx, db, roomID, createdAt)
	})
}

// RecordRoomStarted archives the interviewee's first join asynchronously
func (m *Manager) RecordRoomStarted(roomID string, startedAt time.Time, info *types.ClientInfo) {
	intervieweeOS := ""
	if info != nil {
		intervieweeOS = info.OS
	}
	m.enqueue("start_room", logrus.Fields{"room_id": roomID}, func(ctx context.Context, db *sql.DB) error {
		return markStarted(ctx, db, roomID, startedAt, intervieweeOS)
	})
}

// RecordRoomClosed archives a room's end asynchronously
func (m *Manager) RecordRoomClosed(roomID string, reason string, endedAt time.Time, chatCount int) {
	m.enqueue("close_room", logrus.Fields{"room_id": roomID, "reason": reason}, func(ctx context.Context, db *sql.DB) error {
		return markClosed(ctx, db, roomID, reason, endedAt, chatCount)
	})
}

// Sync waits until every write queued before the call has been applied,
// or until ctx is done
func (m *Manager) Sync(ctx context.Context) error {
	return m.executeWrite(ctx, "sync", func(context.Context, *sql.DB) error { return nil })
}

func insertRoom(ctx context.Context, db *sql.DB, roomID string, createdAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO room_sessions (room_id, status, created_at) VALUES (?, ?, ?)`,
		roomID, types.RecordStatusWaiting, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert room record: %w", err)
	}
	return nil
}

// latestOpenRow selects the newest row of a room that has not ended yet
const latestOpenRow = `(SELECT MAX(archive_id) FROM room_sessions WHERE room_id = ? AND ended_at IS NULL)`

func markStarted(ctx context.Context, db *sql.DB, roomID string, startedAt time.Time, intervieweeOS string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE room_sessions
		 SET status = ?, started_at = ?, interviewee_os = ?
		 WHERE archive_id = `+latestOpenRow+` AND started_at IS NULL`,
		types.RecordStatusInProgress, startedAt.UTC(), intervieweeOS, roomID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark room started: %w", err)
	}
	return requireRow(res, roomID)
}

func markClosed(ctx context.Context, db *sql.DB, roomID, reason string, endedAt time.Time, chatCount int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE room_sessions
		 SET status = ?, ended_at = ?, end_reason = ?, chat_count = ?
		 WHERE archive_id = `+latestOpenRow,
		types.RecordStatusCompleted, endedAt.UTC(), reason, chatCount, roomID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark room closed: %w", err)
	}
	return requireRow(res, roomID)
}

func requireRow(res sql.Result, roomID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", roomID, interfaces.ErrRecordNotFound)
	}
	return nil
}

const selectRecord = `
	SELECT archive_id, room_id, status, created_at, started_at, ended_at, end_reason, chat_count, interviewee_os
	FROM room_sessions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.RoomRecord, error) {
	var record types.RoomRecord
	var startedAt, endedAt sql.NullTime

	err := row.Scan(
		&record.ArchiveID,
		&record.RoomID,
		&record.Status,
		&record.CreatedAt,
		&startedAt,
		&endedAt,
		&record.EndReason,
		&record.ChatCount,
		&record.IntervieweeOS,
	)
	if err != nil {
		return nil, err
	}

	// FUNCTIONAL DISCOVERY: Handle nullable lifecycle timestamps
	if startedAt.Valid {
		t := startedAt.Time
		record.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		record.EndedAt = &t
	}
	return &record, nil
}

// GetRoomRecord returns the newest archived row for roomID
func (m *Manager) GetRoomRecord(ctx context.Context, roomID string) (*types.RoomRecord, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	row := m.db.QueryRowContext(ctx, selectRecord+` WHERE room_id = ? ORDER BY archive_id DESC LIMIT 1`, roomID)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query room record: %w", err)
	}
	return record, nil
}

// ListRoomRecords returns the newest archived rows, at most limit
func (m *Manager) ListRoomRecords(ctx context.Context, limit int) ([]*types.RoomRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := m.db.QueryContext(ctx, selectRecord+` ORDER BY archive_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*types.RoomRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room records: %w", err)
	}
	return records, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetStats returns archive statistics for monitoring
func (m *Manager) GetStats() map[string]int {
	return map[string]int{
		"queued_writes":  len(m.writeChannel),
		"write_capacity": cap(m.writeChannel),
		"open_conns":     m.db.Stats().OpenConnections,
	}
}

// Close drains queued writes and shuts down the database manager
func (m *Manager) Close() error {
	// TECHNICAL DISCOVERY: Prevent multiple close operations
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
