package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/roomlog/internal/models"
)

// PostgresRoomIndex keeps the room index in PostgreSQL.
type PostgresRoomIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresRoomIndex creates a room index backed by a connection pool and
// makes sure its table exists.
func NewPostgresRoomIndex(ctx context.Context, databaseURL string) (*PostgresRoomIndex, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rooms (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			message_count BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_rooms_last_active ON rooms(last_active_at);
	`)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRoomIndex{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresRoomIndex) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresRoomIndex) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Touch records one more message in room at the given time.
func (s *PostgresRoomIndex) Touch(ctx context.Context, name string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (name, created_at, last_active_at, message_count)
		VALUES ($1, $2, $2, 1)
		ON CONFLICT (name) DO UPDATE SET
			message_count = rooms.message_count + 1,
			last_active_at = GREATEST(rooms.last_active_at, EXCLUDED.last_active_at)
	`, name, at)
	return err
}

// GetRoom retrieves a room by name. It returns nil when the room is unknown.
func (s *PostgresRoomIndex) GetRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms WHERE name = $1
	`, name).Scan(&room.Name, &room.CreatedAt, &room.LastActiveAt, &room.MessageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves rooms by most recent activity with pagination.
func (s *PostgresRoomIndex) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms
		ORDER BY last_active_at DESC, name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	rooms, err := collectRooms(rows)
	if err != nil {
		return nil, 0, err
	}
	return rooms, total, nil
}

// CountRooms returns the number of rooms that have seen a message.
func (s *PostgresRoomIndex) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// SumMessageCount returns the total message count across all rooms.
func (s *PostgresRoomIndex) SumMessageCount(ctx context.Context) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(message_count), 0) FROM rooms`).Scan(&sum)
	return sum, err
}

// GetMostRecentActivity returns the most recent activity across all rooms.
func (s *PostgresRoomIndex) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_active_at) FROM rooms`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTopActiveRooms returns the top N rooms by message count.
func (s *PostgresRoomIndex) GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, created_at, last_active_at, message_count
		FROM rooms
		ORDER BY message_count DESC, last_active_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectRooms(rows)
}

func collectRooms(rows pgx.Rows) ([]models.Room, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Room, error) {
		var room models.Room
		err := row.Scan(&room.Name, &room.CreatedAt, &room.LastActiveAt, &room.MessageCount)
		return room, err
	})
}
