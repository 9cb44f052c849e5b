package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/roomlog/internal/models"
)

// RoomIndex records room activity. Rooms are implicit, so entries are
// created lazily by Touch. Both PostgresRoomIndex and SQLiteRoomIndex
// implement this interface.
type RoomIndex interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Activity
	Touch(ctx context.Context, name string, at time.Time) error

	// Queries
	GetRoom(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)
	CountRooms(ctx context.Context) (int64, error)
	SumMessageCount(ctx context.Context) (int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
	GetTopActiveRooms(ctx context.Context, limit int) ([]models.Room, error)
}
