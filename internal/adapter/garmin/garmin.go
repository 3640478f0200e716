package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"healthhub/internal/adapter"
	"healthhub/internal/adapter/rawval"
	"healthhub/internal/config"
	"healthhub/internal/domain"

	"go.uber.org/zap"
)

// garminConfig 凭证附加配置
type garminConfig struct {
	Region string `json:"region"` // "cn" 使用中国区域名
}

// Adapter Garmin 适配器（账号密码认证）
type Adapter struct {
	adapter.BaseAdapter

	client *Client
	userID string
	logger *zap.Logger
}

// New 创建 Garmin 适配器
func New(cred *domain.DeviceCredential, secret *domain.SecretPayload, vendorCfg *config.VendorConfig, logger *zap.Logger) (*Adapter, error) {
	if secret == nil || secret.Password == nil {
		return nil, fmt.Errorf("garmin adapter requires password credentials")
	}

	var gc garminConfig
	if len(cred.Config) > 0 {
		// 配置解析失败不致命，回退国际区
		_ = json.Unmarshal(cred.Config, &gc)
	}

	baseURL := vendorCfg.Garmin.BaseURL
	if gc.Region == "cn" {
		baseURL = vendorCfg.Garmin.BaseURLCN
	}

	client := NewClient(baseURL, vendorCfg.Garmin.Timeout, secret.Password.Email, secret.Password.Password, logger)

	return &Adapter{
		client: client,
		userID: cred.UserID,
		logger: logger.With(zap.String("adapter", "garmin"), zap.String("user_id", cred.UserID)),
	}, nil
}

// NewConstructor 生成注册表用的构造函数
func NewConstructor(vendorCfg *config.VendorConfig) adapter.Constructor {
	return func(cred *domain.DeviceCredential, secret *domain.SecretPayload, logger *zap.Logger) (adapter.DeviceAdapter, error) {
		return New(cred, secret, vendorCfg, logger)
	}
}

func (a *Adapter) DeviceType() domain.DeviceType { return domain.DeviceGarmin }
func (a *Adapter) AuthType() domain.AuthType     { return domain.AuthPassword }

// Authenticate 登录校验
// 厂家明确拒绝返回 (false, nil)，传输异常原样上抛
func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	err := a.client.Login(ctx)
	if err == nil {
		return true, nil
	}
	if domain.IsAuthError(err) {
		return false, nil
	}
	return false, err
}

// TestConnection 绑定前探测：登录 + 拉取用户资料
func (a *Adapter) TestConnection(ctx context.Context) (*adapter.ConnectionResult, error) {
	if err := a.client.Login(ctx); err != nil {
		if domain.IsAuthError(err) {
			return &adapter.ConnectionResult{Success: false, Message: "invalid email or password"}, nil
		}
		return nil, err
	}

	profile, err := a.client.GetSocialProfile(ctx)
	if err != nil {
		if domain.IsAuthError(err) {
			return &adapter.ConnectionResult{Success: false, Message: "session rejected"}, nil
		}
		return nil, err
	}

	result := &adapter.ConnectionResult{Success: true, Message: "connected"}
	if m, ok := rawval.Map(profile); ok {
		info := make(map[string]string)
		if name, ok := rawval.FirstString(m, "displayName", "fullName", "userName"); ok {
			info["display_name"] = name
		}
		if len(info) > 0 {
			result.UserInfo = info
		}
	}
	return result, nil
}

// FetchDailyData 拉取某天数据
// 五个端点相互独立，单个失败只影响自己的字段，认证失败才整体终止
func (a *Adapter) FetchDailyData(ctx context.Context, date time.Time) (*domain.NormalizedHealthData, error) {
	if err := a.client.Login(ctx); err != nil {
		return nil, err
	}

	dateStr := date.Format("2006-01-02")

	endpoints := []struct {
		key  string
		call func(context.Context, string) (any, error)
	}{
		{"summary", a.client.GetDailySummary},
		{"sleep", a.client.GetSleepData},
		{"heartrate", a.client.GetHeartRate},
		{"bodybattery", a.client.GetBodyBattery},
		{"stress", a.client.GetStress},
	}

	bag := make(map[string]any)
	failed := 0
	for _, ep := range endpoints {
		payload, err := ep.call(ctx, dateStr)
		if err != nil {
			if domain.IsAuthError(err) {
				// 凭证被拒后续端点必然同样失败，直接终止
				return nil, err
			}
			failed++
			a.logger.Warn("Garmin endpoint failed, continuing with partial data",
				zap.String("endpoint", ep.key),
				zap.String("date", dateStr),
				zap.Error(err),
			)
			continue
		}
		if payload != nil {
			bag[ep.key] = payload
		}
	}

	if len(bag) == 0 {
		if failed == len(endpoints) {
			// 五个端点全挂，按传输失败计入当天
			return nil, &domain.TransportError{DeviceType: domain.DeviceGarmin, Op: "fetch-daily", Err: fmt.Errorf("all %d endpoints failed", failed)}
		}
		// 端点可达但当天无数据
		return nil, nil
	}

	rec := normalize(bag, a.userID, date)
	if rec.IsEmpty() {
		if bagHasContent(bag) {
			// 载荷非空却一个字段都提取不出，大概率是厂家结构性变更，值得上浮
			return nil, &domain.ParseError{DeviceType: domain.DeviceGarmin, Endpoint: "fetch-daily", Reason: "non-empty payload yielded zero fields"}
		}
		return nil, nil
	}

	return rec, nil
}

// FetchHeartRateSamples 心率采样序列（可选能力）
// 载荷形如 {"heartRateValues": [[timestampMillis, bpm], ...]}
func (a *Adapter) FetchHeartRateSamples(ctx context.Context, date time.Time) ([]domain.HeartRateSample, error) {
	if err := a.client.Login(ctx); err != nil {
		return nil, err
	}

	payload, err := a.client.GetHeartRate(ctx, date.Format("2006-01-02"))
	if err != nil || payload == nil {
		return nil, err
	}

	m, ok := rawval.Map(payload)
	if !ok {
		return nil, nil
	}
	values, ok := m["heartRateValues"].([]any)
	if !ok {
		return nil, nil
	}

	samples := make([]domain.HeartRateSample, 0, len(values))
	for _, v := range values {
		pair, ok := v.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		ts, okTs := rawval.Float(pair[0])
		bpm, okBpm := rawval.Int(pair[1])
		if !okTs || !okBpm || bpm <= 0 {
			continue
		}
		samples = append(samples, domain.HeartRateSample{
			Timestamp: time.UnixMilli(int64(ts)).UTC(),
			BPM:       bpm,
		})
	}
	return samples, nil
}

// FetchWorkouts 运动记录（可选能力）
func (a *Adapter) FetchWorkouts(ctx context.Context, start, end time.Time) ([]domain.Workout, error) {
	if err := a.client.Login(ctx); err != nil {
		return nil, err
	}

	payload, err := a.client.GetActivities(ctx, start.Format("2006-01-02"), end.Format("2006-01-02"), 100)
	if err != nil || payload == nil {
		return nil, err
	}

	list, ok := payload.([]any)
	if !ok {
		return nil, nil
	}

	workouts := make([]domain.Workout, 0, len(list))
	for _, item := range list {
		m, ok := rawval.Map(item)
		if !ok {
			continue
		}

		w := domain.Workout{}
		if s, ok := rawval.String(rawval.Dig(m, "activityType", "typeKey")); ok {
			w.WorkoutType = s
		} else if s, ok := rawval.FirstString(m, "activityType", "activityName"); ok {
			w.WorkoutType = s
		}

		if s, ok := rawval.FirstString(m, "startTimeGMT", "startTimeLocal"); ok {
			if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
				w.StartTime = t.UTC()
			}
		}

		if raw, ok := rawval.FirstFloat(m, "duration", "elapsedDuration"); ok {
			w.DurationMinutes = rawval.DurationMinutes(raw)
			if !w.StartTime.IsZero() {
				w.EndTime = w.StartTime.Add(time.Duration(w.DurationMinutes) * time.Minute)
			}
		}

		if f, ok := rawval.FirstFloat(m, "distance", "distanceInMeters"); ok {
			w.DistanceMeters = f
		}
		if v, ok := rawval.FirstInt(m, "calories", "activeKilocalories"); ok {
			w.Calories = v
		}

		workouts = append(workouts, w)
	}
	return workouts, nil
}

// bagHasContent 判断原始袋里是否有实质内容（非空对象/列表）
func bagHasContent(bag map[string]any) bool {
	for _, v := range bag {
		switch payload := v.(type) {
		case map[string]any:
			if len(payload) > 0 {
				return true
			}
		case []any:
			if len(payload) > 0 {
				return true
			}
		}
	}
	return false
}
