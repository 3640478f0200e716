package adapter

import (
	"context"
	"time"

	"healthhub/internal/domain"
)

// ConnectionResult 连通性探测结果
type ConnectionResult struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	UserInfo map[string]string `json:"user_info,omitempty"`
}

// DeviceAdapter 设备适配器契约
// 每个厂家一个实现，适配器实例只服务单次同步调用，不跨调用复用
//
// FetchDailyData 约定：
//   - 当天无数据返回 (nil, nil)，不是错误
//   - 仅在认证失败 / 传输失败 / 完全解析失败时返回 error（见 domain/errors.go）
type DeviceAdapter interface {
	// DeviceType 设备类型（静态元数据，无 I/O）
	DeviceType() domain.DeviceType

	// AuthType 认证方式（静态元数据，无 I/O）
	AuthType() domain.AuthType

	// Authenticate 校验并缓存凭证
	// 厂家明确拒绝时返回 (false, nil)；传输类异常返回 error
	Authenticate(ctx context.Context) (bool, error)

	// TestConnection 绑定前的轻量探测，不改动任何存储状态
	TestConnection(ctx context.Context) (*ConnectionResult, error)

	// FetchDailyData 拉取某天的标准化健康数据
	FetchDailyData(ctx context.Context, date time.Time) (*domain.NormalizedHealthData, error)

	// ========== 可选能力（不支持的适配器用 BaseAdapter 的空实现） ==========

	// FetchHeartRateSamples 拉取当天心率采样序列
	FetchHeartRateSamples(ctx context.Context, date time.Time) ([]domain.HeartRateSample, error)

	// FetchWorkouts 拉取时间段内的运动记录
	FetchWorkouts(ctx context.Context, start, end time.Time) ([]domain.Workout, error)

	// RefreshToken 刷新访问令牌（仅 OAuth2 适配器）
	RefreshToken(ctx context.Context) (bool, error)

	// OAuthURL 生成授权跳转地址（仅 OAuth2 适配器），不支持返回空串
	OAuthURL(redirectURI, state string) string
}

// BaseAdapter 可选能力的默认空实现，各适配器内嵌后按需覆盖
type BaseAdapter struct{}

func (BaseAdapter) FetchHeartRateSamples(ctx context.Context, date time.Time) ([]domain.HeartRateSample, error) {
	return nil, nil
}

func (BaseAdapter) FetchWorkouts(ctx context.Context, start, end time.Time) ([]domain.Workout, error) {
	return nil, nil
}

func (BaseAdapter) RefreshToken(ctx context.Context) (bool, error) {
	return false, nil
}

func (BaseAdapter) OAuthURL(redirectURI, state string) string {
	return ""
}
