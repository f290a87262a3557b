package interfaces

import (
	"context"
	"time"

	"trueinterview/pkg/types"
)

// RoomArchive records room lifecycle summaries.
// ARCHITECTURAL DISCOVERY: Methods are fire-and-forget so the room hot path
// never waits on disk; failures are logged by the implementation
type RoomArchive interface {
	RecordRoomCreated(roomID string, createdAt time.Time)
	RecordRoomStarted(roomID string, startedAt time.Time, info *types.ClientInfo)
	RecordRoomClosed(roomID string, reason string, endedAt time.Time, chatCount int)
}

// ArchiveReader serves archived room summaries to the HTTP side channel.
type ArchiveReader interface {
	GetRoomRecord(ctx context.Context, roomID string) (*types.RoomRecord, error)
	ListRoomRecords(ctx context.Context, limit int) ([]*types.RoomRecord, error)
	HealthCheck(ctx context.Context) error
	GetStats() map[string]int
}
