package repository

import (
	"context"

	"healthhub/internal/domain"
)

// HealthRecordRepository 每日健康记录 Repository 接口
// 存储键为 (user_id, record_date)；source 仅作信息记录
type HealthRecordRepository interface {
	// UpsertDailyRecord 写入或合并某天的记录
	// 合并语义：新记录中为空的字段不得抹掉已存储的值（COALESCE 合并），幂等
	UpsertDailyRecord(ctx context.Context, rec *domain.NormalizedHealthData) error

	// GetByDate 获取某天记录，无数据返回 (nil, nil)
	GetByDate(ctx context.Context, userID string, date string) (*domain.NormalizedHealthData, error)

	// ListRange 获取日期区间内的记录（按日期倒序）
	ListRange(ctx context.Context, userID string, startDate, endDate string) ([]*domain.NormalizedHealthData, error)
}
