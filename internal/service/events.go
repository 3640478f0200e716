package service

import (
	"context"
	"time"

	"healthhub/internal/domain"
	"healthhub/pkg/redisutil"

	"go.uber.org/zap"
)

// SyncEvent 单日同步完成事件，发布到 Redis Streams 供下游消费
type SyncEvent struct {
	UserID     string            `json:"user_id"`
	DeviceType domain.DeviceType `json:"device_type"`
	RecordDate string            `json:"record_date"`
	SyncedAt   time.Time         `json:"synced_at"`
}

// SyncEventPublisher 同步事件发布器
// 发布失败只记日志，不影响同步结果
type SyncEventPublisher struct {
	client *redisutil.Client
	stream string
	logger *zap.Logger
}

// NewSyncEventPublisher 创建事件发布器，client 为 nil 时发布为空操作
func NewSyncEventPublisher(client *redisutil.Client, stream string, logger *zap.Logger) *SyncEventPublisher {
	return &SyncEventPublisher{client: client, stream: stream, logger: logger}
}

// PublishDaySynced 发布某天同步完成事件
func (p *SyncEventPublisher) PublishDaySynced(ctx context.Context, userID string, deviceType domain.DeviceType, recordDate string) {
	if p == nil || p.client == nil {
		return
	}

	event := SyncEvent{
		UserID:     userID,
		DeviceType: deviceType,
		RecordDate: recordDate,
		SyncedAt:   time.Now(),
	}

	if _, err := redisutil.PublishJSONToStream(ctx, p.client, p.stream, event); err != nil {
		p.logger.Warn("Failed to publish sync event",
			zap.String("user_id", userID),
			zap.String("device_type", string(deviceType)),
			zap.String("record_date", recordDate),
			zap.Error(err),
		)
	}
}
