package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"healthhub/internal/adapter"
	"healthhub/internal/config"
	"healthhub/internal/domain"
	"healthhub/internal/repository"
	"healthhub/internal/secrets"

	"go.uber.org/zap"
)

// BindingStatus 绑定状态展示信息（不含任何密钥内容）
type BindingStatus struct {
	DeviceType  domain.DeviceType `json:"device_type"`
	AuthType    domain.AuthType   `json:"auth_type"`
	IsValid     bool              `json:"is_valid"`
	SyncEnabled bool              `json:"sync_enabled"`
	LastSyncAt  *time.Time        `json:"last_sync_at,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	ErrorCount  int               `json:"error_count"`
}

// BindRequest 绑定请求
type BindRequest struct {
	UserID      string
	DeviceType  domain.DeviceType
	Secret      *domain.SecretPayload
	Config      json.RawMessage
	SyncEnabled bool
}

// DeviceManager 多设备同步编排器
//
// 职责：绑定/解绑、按需构造适配器、逐日拉取与落库、凭证生命周期流转。
// 同一 (user, device) 的同步做 single-flight，重复触发返回 ErrSyncInProgress
type DeviceManager struct {
	registry *adapter.Registry
	creds    repository.CredentialRepository
	records  repository.HealthRecordRepository
	events   *SyncEventPublisher
	cfg      config.SyncConfig
	logger   *zap.Logger

	// 测试注入点
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewDeviceManager 创建编排器
func NewDeviceManager(
	registry *adapter.Registry,
	creds repository.CredentialRepository,
	records repository.HealthRecordRepository,
	events *SyncEventPublisher,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *DeviceManager {
	return &DeviceManager{
		registry: registry,
		creds:    creds,
		records:  records,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ListSupportedDevices 返回已注册的设备类型与认证方式
func (m *DeviceManager) ListSupportedDevices() []adapter.DeviceInfo {
	return m.registry.Supported()
}

// ========== 绑定管理 ==========

// Bind 绑定设备：先用新凭证探测连通性，探测通过才加密落库
// 重新绑定会重置生命周期（is_valid=true, error_count=0）
func (m *DeviceManager) Bind(ctx context.Context, req *BindRequest) (*adapter.ConnectionResult, error) {
	authType, ok := m.registry.AuthTypeOf(req.DeviceType)
	if !ok {
		return nil, fmt.Errorf("unsupported device type: %s", req.DeviceType)
	}

	cred := &domain.DeviceCredential{
		UserID:      req.UserID,
		DeviceType:  req.DeviceType,
		AuthType:    authType,
		Config:      req.Config,
		SyncEnabled: req.SyncEnabled,
	}

	adp, err := m.registry.Build(cred, req.Secret, m.logger)
	if err != nil {
		return nil, err
	}

	result, err := adp.TestConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	if !result.Success {
		return result, nil
	}

	plaintext, err := domain.EncodeSecret(authType, req.Secret)
	if err != nil {
		return nil, err
	}
	encrypted, err := secrets.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}
	cred.EncryptedSecret = encrypted

	if err := m.creds.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	m.logger.Info("Device bound",
		zap.String("user_id", req.UserID),
		zap.String("device_type", string(req.DeviceType)),
	)
	return result, nil
}

// Unbind 解绑设备并删除凭证
func (m *DeviceManager) Unbind(ctx context.Context, userID string, deviceType domain.DeviceType) error {
	return m.creds.Delete(ctx, userID, deviceType)
}

// ListBindings 返回用户全部绑定的状态信息
func (m *DeviceManager) ListBindings(ctx context.Context, userID string) ([]*BindingStatus, error) {
	creds, err := m.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	statuses := make([]*BindingStatus, 0, len(creds))
	for _, cred := range creds {
		statuses = append(statuses, &BindingStatus{
			DeviceType:  cred.DeviceType,
			AuthType:    cred.AuthType,
			IsValid:     cred.IsValid,
			SyncEnabled: cred.SyncEnabled,
			LastSyncAt:  cred.LastSyncAt,
			LastError:   cred.LastError,
			ErrorCount:  cred.ErrorCount,
		})
	}
	return statuses, nil
}

// ========== 同步编排 ==========

func syncKey(userID string, deviceType domain.DeviceType) string {
	return userID + "|" + string(deviceType)
}

func (m *DeviceManager) acquire(userID string, deviceType domain.DeviceType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := syncKey(userID, deviceType)
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *DeviceManager) release(userID string, deviceType domain.DeviceType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, syncKey(userID, deviceType))
}

// SyncDeviceData 同步单个设备最近 days 天的数据（含当天，从最近日期开始）
//
// 错误处理约定：
//   - 单日失败计入 FailedDays 后继续下一天；认证失败中止剩余日期
//   - 当天无数据跳过，不落库、不计失败
//   - 生命周期：认证失败立即置 invalid；有成功或无失败则置 valid；
//     否则错误计数 +1，达到阈值由存储层置 invalid
func (m *DeviceManager) SyncDeviceData(ctx context.Context, userID string, deviceType domain.DeviceType, days int) (*domain.SyncOutcome, error) {
	cred, err := m.creds.GetByUserAndType(ctx, userID, deviceType)
	if err != nil {
		return nil, err
	}
	if !cred.IsValid {
		return nil, domain.ErrCredentialInvalid
	}

	if !m.acquire(userID, deviceType) {
		return nil, domain.ErrSyncInProgress
	}
	defer m.release(userID, deviceType)

	return m.syncCredential(ctx, cred, days)
}

func (m *DeviceManager) syncCredential(ctx context.Context, cred *domain.DeviceCredential, days int) (*domain.SyncOutcome, error) {
	if days <= 0 {
		days = 1
	}

	plaintext, err := secrets.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	secret, err := domain.DecodeSecret(cred.AuthType, plaintext)
	if err != nil {
		return nil, err
	}

	adp, err := m.registry.Build(cred, secret, m.logger)
	if err != nil {
		return nil, err
	}

	outcome := &domain.SyncOutcome{DeviceType: cred.DeviceType}
	var authErr error
	today := m.now()

	for i := 0; i < days; i++ {
		if i > 0 {
			// 相邻日期请求之间留间隔，避免触发厂家限流
			if err := m.sleep(ctx, m.cfg.RequestDelay); err != nil {
				outcome.Message = "sync cancelled"
				break
			}
		}

		date := today.AddDate(0, 0, -i)
		data, err := adp.FetchDailyData(ctx, date)
		if err != nil {
			outcome.FailedDays++
			if domain.IsAuthError(err) {
				// 凭证已失效，继续剩余日期只会重复失败
				authErr = err
				outcome.Message = err.Error()
				break
			}
			m.logger.Warn("Daily sync failed",
				zap.String("user_id", cred.UserID),
				zap.String("device_type", string(cred.DeviceType)),
				zap.String("date", date.Format("2006-01-02")),
				zap.Error(err),
			)
			if outcome.Message == "" {
				outcome.Message = err.Error()
			}
			if domain.IsRateLimited(err) {
				// 429 是厂家明确的退避指令，比常规间隔多等一轮
				if err := m.sleep(ctx, 2*m.cfg.RequestDelay); err != nil {
					outcome.Message = "sync cancelled"
					break
				}
			}
			continue
		}
		if data == nil || data.IsEmpty() {
			continue
		}

		if err := m.records.UpsertDailyRecord(ctx, data); err != nil {
			outcome.FailedDays++
			m.logger.Error("Failed to store daily record",
				zap.String("user_id", cred.UserID),
				zap.String("date", data.RecordDate),
				zap.Error(err),
			)
			continue
		}

		outcome.SyncedDays++
		m.events.PublishDaySynced(ctx, cred.UserID, cred.DeviceType, data.RecordDate)
	}

	m.applyLifecycle(ctx, cred, outcome, authErr)
	return outcome, nil
}

// applyLifecycle 按同步结果流转凭证状态
func (m *DeviceManager) applyLifecycle(ctx context.Context, cred *domain.DeviceCredential, outcome *domain.SyncOutcome, authErr error) {
	var err error
	switch {
	case authErr != nil:
		err = m.creds.MarkInvalid(ctx, cred.ID, authErr.Error())
	case outcome.SyncedDays > 0 || outcome.FailedDays == 0:
		// 全部日期无数据也算成功：凭证工作正常，只是当天没产出
		err = m.creds.MarkValid(ctx, cred.ID, m.now())
	default:
		err = m.creds.RecordError(ctx, cred.ID, outcome.Message, m.cfg.ErrorThreshold)
	}
	if err != nil {
		m.logger.Error("Failed to update credential lifecycle",
			zap.String("credential_id", cred.ID),
			zap.Error(err),
		)
	}
}

// SyncAllDevices 同步用户全部绑定设备，设备间并发、互不影响
// 未启用或已失效的绑定产生跳过结果，不产生错误
func (m *DeviceManager) SyncAllDevices(ctx context.Context, userID string, days int) ([]*domain.SyncOutcome, error) {
	creds, err := m.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	workers := m.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]*domain.SyncOutcome, len(creds))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, cred := range creds {
		if !cred.SyncEnabled {
			outcomes[i] = &domain.SyncOutcome{DeviceType: cred.DeviceType, Message: "sync disabled, skipped"}
			continue
		}
		if !cred.IsValid {
			outcomes[i] = &domain.SyncOutcome{DeviceType: cred.DeviceType, Message: "credential invalid, re-bind required"}
			continue
		}

		wg.Add(1)
		go func(i int, cred *domain.DeviceCredential) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if !m.acquire(cred.UserID, cred.DeviceType) {
				outcomes[i] = &domain.SyncOutcome{DeviceType: cred.DeviceType, Message: "sync already in progress"}
				return
			}
			defer m.release(cred.UserID, cred.DeviceType)

			outcome, err := m.syncCredential(ctx, cred, days)
			if err != nil {
				outcomes[i] = &domain.SyncOutcome{DeviceType: cred.DeviceType, FailedDays: days, Message: err.Error()}
				return
			}
			outcomes[i] = outcome
		}(i, cred)
	}

	wg.Wait()
	return outcomes, nil
}
