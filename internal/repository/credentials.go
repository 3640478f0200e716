package repository

import (
	"context"
	"time"

	"healthhub/internal/domain"
)

// CredentialRepository 设备凭证 Repository 接口
// 生命周期变更（MarkValid/MarkInvalid/RecordError）必须是原子的读改写，
// 只允许编排器调用；用户侧只有绑定（Upsert）与解绑（Delete）
type CredentialRepository interface {
	// ========== 查询接口 ==========

	// GetByUserAndType 获取凭证，不存在返回 domain.ErrNotBound
	GetByUserAndType(ctx context.Context, userID string, deviceType domain.DeviceType) (*domain.DeviceCredential, error)

	// ListByUser 获取用户的全部凭证（含已失效的，状态页展示用）
	ListByUser(ctx context.Context, userID string) ([]*domain.DeviceCredential, error)

	// ========== 写入接口 ==========

	// Upsert 绑定或重新绑定
	// 唯一性约束：user_id + device_type；重新绑定会重置生命周期（is_valid=true, error_count=0）
	Upsert(ctx context.Context, cred *domain.DeviceCredential) error

	// Delete 解绑
	Delete(ctx context.Context, userID string, deviceType domain.DeviceType) error

	// UpdateSecret 仅更新密文（OAuth 令牌刷新轮换时用），不动生命周期
	UpdateSecret(ctx context.Context, id string, encryptedSecret string) error

	// ========== 生命周期接口（仅编排器） ==========

	// MarkValid 同步成功：置有效并清零错误计数
	MarkValid(ctx context.Context, id string, syncedAt time.Time) error

	// MarkInvalid 认证失败：立即置无效
	MarkInvalid(ctx context.Context, id string, reason string) error

	// RecordError 非认证类失败：错误计数 +1，达到 threshold 时置无效
	RecordError(ctx context.Context, id string, reason string, threshold int) error
}
