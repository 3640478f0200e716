package huawei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"healthhub/internal/adapter"
	"healthhub/internal/adapter/rawval"
	"healthhub/internal/config"
	"healthhub/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Adapter Huawei Health Kit 适配器（OAuth2 认证）
type Adapter struct {
	adapter.BaseAdapter

	tokens  *TokenManager
	data    *resty.Client
	dataURL string
	userID  string
	logger  *zap.Logger
}

// New 创建 Huawei 适配器
// saver 在令牌刷新后被调用，由编排器重新加密落库
func New(cred *domain.DeviceCredential, secret *domain.SecretPayload, vendorCfg *config.VendorConfig, saver TokenSaver, logger *zap.Logger) (*Adapter, error) {
	if secret == nil || secret.OAuth == nil {
		return nil, fmt.Errorf("huawei adapter requires oauth credentials")
	}

	hw := vendorCfg.Huawei
	tokens := NewTokenManager(hw.ClientID, hw.ClientSecret, hw.AuthURL, hw.TokenURL, hw.Timeout, secret.OAuth, saver, logger)

	return &Adapter{
		tokens:  tokens,
		data:    resty.New().SetBaseURL(hw.DataURL).SetTimeout(hw.Timeout).SetHeader("Accept", "application/json"),
		dataURL: hw.DataURL,
		userID:  cred.UserID,
		logger:  logger.With(zap.String("adapter", "huawei"), zap.String("user_id", cred.UserID)),
	}, nil
}

// NewConstructor 生成注册表用的构造函数（无持久化回调，刷新结果只在内存生效）
// 编排器通过 SyncDeviceData 注入带落库回调的版本
func NewConstructor(vendorCfg *config.VendorConfig, saverFactory func(cred *domain.DeviceCredential) TokenSaver) adapter.Constructor {
	return func(cred *domain.DeviceCredential, secret *domain.SecretPayload, logger *zap.Logger) (adapter.DeviceAdapter, error) {
		var saver TokenSaver
		if saverFactory != nil {
			saver = saverFactory(cred)
		}
		return New(cred, secret, vendorCfg, saver, logger)
	}
}

func (a *Adapter) DeviceType() domain.DeviceType { return domain.DeviceHuawei }
func (a *Adapter) AuthType() domain.AuthType     { return domain.AuthOAuth2 }

// Authenticate 令牌有效性校验（必要时触发一次刷新）
func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	err := a.tokens.EnsureFresh(ctx)
	if err == nil {
		return true, nil
	}
	if domain.IsAuthError(err) {
		return false, nil
	}
	return false, err
}

// TestConnection 绑定前探测
func (a *Adapter) TestConnection(ctx context.Context) (*adapter.ConnectionResult, error) {
	if err := a.tokens.EnsureFresh(ctx); err != nil {
		if domain.IsAuthError(err) {
			return &adapter.ConnectionResult{Success: false, Message: "oauth token invalid, re-authorize required"}, nil
		}
		return nil, err
	}
	return &adapter.ConnectionResult{Success: true, Message: "connected"}, nil
}

// FetchDailyData 拉取某天数据
// 先确保令牌新鲜；数据端点返回 401 时透明刷新一次并重试一次，
// 再失败按认证错误上抛（编排器据此置 invalid）
func (a *Adapter) FetchDailyData(ctx context.Context, date time.Time) (*domain.NormalizedHealthData, error) {
	if err := a.tokens.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	payload, err := a.getDailyStats(ctx, date)
	if domain.IsAuthError(err) {
		// access_token 在服务端被提前吊销：刷新一次再试一次
		if refreshErr := a.tokens.Refresh(ctx); refreshErr != nil {
			return nil, refreshErr
		}
		payload, err = a.getDailyStats(ctx, date)
	}
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	rec := a.normalize(payload, date)
	if rec.IsEmpty() {
		if m, ok := rawval.Map(payload); ok && len(m) > 0 {
			return nil, &domain.ParseError{DeviceType: domain.DeviceHuawei, Endpoint: "daily-stats", Reason: "non-empty payload yielded zero fields"}
		}
		return nil, nil
	}
	return rec, nil
}

// RefreshToken 可选能力：显式刷新
func (a *Adapter) RefreshToken(ctx context.Context) (bool, error) {
	if err := a.tokens.Refresh(ctx); err != nil {
		if domain.IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OAuthURL 可选能力：授权地址
func (a *Adapter) OAuthURL(redirectURI, state string) string {
	return a.tokens.AuthorizeURL(redirectURI, state)
}

// getDailyStats 调用每日统计端点
func (a *Adapter) getDailyStats(ctx context.Context, date time.Time) (any, error) {
	resp, err := a.data.R().
		SetContext(ctx).
		SetAuthToken(a.tokens.Secret().AccessToken).
		SetQueryParam("date", date.Format("20060102")).
		Get("/dailyStats")

	if err != nil {
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "daily-stats", Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, &domain.AuthError{DeviceType: domain.DeviceHuawei, Reason: "access token rejected"}
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "daily-stats", StatusCode: resp.StatusCode(), RateLimit: true}
	case resp.StatusCode() == http.StatusNoContent || resp.StatusCode() == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode() >= 400:
		return nil, &domain.TransportError{DeviceType: domain.DeviceHuawei, Op: "daily-stats", StatusCode: resp.StatusCode()}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &domain.ParseError{DeviceType: domain.DeviceHuawei, Endpoint: "daily-stats", Reason: "response is not valid JSON"}
	}
	return decoded, nil
}

// normalize Huawei 载荷提取
// 结构比 Garmin 稳定，但仍按防御式取值处理
func (a *Adapter) normalize(payload any, date time.Time) *domain.NormalizedHealthData {
	rec := &domain.NormalizedHealthData{
		UserID:     a.userID,
		RecordDate: date.Format("2006-01-02"),
		Source:     domain.DeviceHuawei,
	}

	m, ok := rawval.Map(payload)
	if !ok {
		return rec
	}

	if v, ok := rawval.FirstInt(m, "steps", "stepCount"); ok {
		rec.Steps = &v
	}
	if f, ok := rawval.FirstFloat(m, "distance", "distanceMeters"); ok {
		rec.DistanceMeters = &f
	}
	if v, ok := rawval.FirstInt(m, "calorie", "totalCalories"); ok {
		rec.TotalCalories = &v
	}
	if v, ok := rawval.FirstInt(m, "activeCalorie", "activeCalories"); ok {
		rec.ActiveCalories = &v
	}
	if v, ok := rawval.FirstInt(m, "strengthTime", "activeMinutes"); ok {
		rec.ActiveMinutes = &v
	}

	sleep, _ := rawval.Map(m["sleepData"])
	if raw, ok := rawval.FirstFloat(sleep, "totalSleepSeconds", "totalTime"); ok {
		mins := rawval.DurationMinutes(raw)
		rec.TotalSleepMinutes = &mins
	}
	if raw, ok := rawval.FirstFloat(sleep, "deepSleepSeconds", "deepSleepTime"); ok {
		mins := rawval.DurationMinutes(raw)
		rec.DeepSleepMinutes = &mins
	}
	if raw, ok := rawval.FirstFloat(sleep, "remSleepSeconds", "dreamTime"); ok {
		mins := rawval.DurationMinutes(raw)
		rec.RemSleepMinutes = &mins
	}
	if raw, ok := rawval.FirstFloat(sleep, "lightSleepSeconds", "shallowSleepTime"); ok {
		mins := rawval.DurationMinutes(raw)
		rec.LightSleepMinutes = &mins
	}
	if v, ok := rawval.FirstInt(sleep, "sleepScore", "score"); ok {
		rec.SleepScore = &v
	}

	hr, _ := rawval.Map(m["heartRate"])
	if v, ok := rawval.FirstInt(hr, "restHeartRate", "restingHeartRate"); ok {
		rec.RestingHeartRate = &v
	}
	if v, ok := rawval.FirstInt(hr, "avgHeartRate", "averageHeartRate"); ok {
		rec.AvgHeartRate = &v
	}
	if v, ok := rawval.FirstInt(hr, "maxHeartRate"); ok {
		rec.MaxHeartRate = &v
	}
	if v, ok := rawval.FirstInt(hr, "minHeartRate"); ok {
		rec.MinHeartRate = &v
	}

	if v, ok := rawval.FirstInt(m, "stressLevel", "avgStress"); ok {
		rec.StressLevel = &v
	}

	spo2, _ := rawval.Map(m["spo2"])
	if f, ok := rawval.FirstFloat(spo2, "avgSpo2", "avgOxygenSaturation"); ok {
		rec.SpO2Avg = &f
	}
	if f, ok := rawval.FirstFloat(spo2, "minSpo2", "minOxygenSaturation"); ok {
		rec.SpO2Min = &f
	}

	return rec
}
