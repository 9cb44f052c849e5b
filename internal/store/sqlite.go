package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/roomlog/internal/models"
)

// SQLiteRoomIndex keeps the room index in a local SQLite database.
type SQLiteRoomIndex struct {
	db *sql.DB
}

// NewSQLiteRoomIndex opens the index database.
// If dbPath is empty, defaults to "./data/rooms.db"
func NewSQLiteRoomIndex(ctx context.Context, dbPath string) (*SQLiteRoomIndex, error) {
	if dbPath == "" {
		dbPath = "./data/rooms.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	idx := &SQLiteRoomIndex{db: db}
	if err := idx.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteRoomIndex) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		last_active_at DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_last_active ON rooms(last_active_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteRoomIndex) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteRoomIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Touch records one more message in room at the given time, creating the
// entry on first use.
func (s *SQLiteRoomIndex) Touch(ctx context.Context, name string, at time.Time) error {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (name, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			message_count = message_count + 1,
			last_active_at = excluded.last_active_at
	`, name, at, at)
	return err
}

// GetRoom retrieves a room by name. It returns nil when the room is unknown.
func (s *SQLiteRoomIndex) GetRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms WHERE name = ?
	`, name).Scan(&room.Name, &room.CreatedAt, &room.LastActiveAt, &room.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves rooms by most recent activity with pagination.
func (s *SQLiteRoomIndex) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms
		ORDER BY last_active_at DESC, name
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	rooms, err := scanRooms(rows)
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// CountRooms returns the number of rooms that have seen a message.
func (s *SQLiteRoomIndex) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all rooms.
func (s *SQLiteRoomIndex) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity across all rooms,
// or nil when the index is empty.
func (s *SQLiteRoomIndex) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	// Selecting the column (not MAX) keeps its declared type for the driver.
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_active_at FROM rooms ORDER BY last_active_at DESC LIMIT 1
	`).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetTopActiveRooms returns the top N rooms by message count.
func (s *SQLiteRoomIndex) GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanRooms(rows)
}

func scanRooms(rows *sql.Rows) ([]models.Room, error) {
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.Name, &room.CreatedAt, &room.LastActiveAt, &room.MessageCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
