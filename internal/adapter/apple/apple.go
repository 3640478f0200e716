package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"healthhub/internal/adapter"
	"healthhub/internal/domain"

	"go.uber.org/zap"
)

// appleConfig 凭证附加配置：导出文件路径
type appleConfig struct {
	ExportPath string `json:"export_path"`
}

// Adapter Apple Health 文件导入适配器
// 无远端凭证，数据来自用户上传的 export.xml；
// 适配器实例服务单次同步，首次取数时解析整个文件并按日缓存
type Adapter struct {
	adapter.BaseAdapter

	exportPath string
	userID     string
	logger     *zap.Logger

	parsed *parsedExport
}

// New 创建 Apple 适配器
func New(cred *domain.DeviceCredential, _ *domain.SecretPayload, logger *zap.Logger) (*Adapter, error) {
	var ac appleConfig
	if len(cred.Config) > 0 {
		if err := json.Unmarshal(cred.Config, &ac); err != nil {
			return nil, fmt.Errorf("invalid apple adapter config: %w", err)
		}
	}
	if ac.ExportPath == "" {
		return nil, fmt.Errorf("apple adapter requires export_path in config")
	}

	return &Adapter{
		exportPath: ac.ExportPath,
		userID:     cred.UserID,
		logger:     logger.With(zap.String("adapter", "apple"), zap.String("user_id", cred.UserID)),
	}, nil
}

// NewConstructor 生成注册表用的构造函数
func NewConstructor() adapter.Constructor {
	return func(cred *domain.DeviceCredential, secret *domain.SecretPayload, logger *zap.Logger) (adapter.DeviceAdapter, error) {
		return New(cred, secret, logger)
	}
}

func (a *Adapter) DeviceType() domain.DeviceType { return domain.DeviceApple }
func (a *Adapter) AuthType() domain.AuthType     { return domain.AuthFile }

// Authenticate 校验导出文件可访问
func (a *Adapter) Authenticate(ctx context.Context) (bool, error) {
	if _, err := os.Stat(a.exportPath); err != nil {
		return false, nil
	}
	return true, nil
}

// TestConnection 绑定前探测：文件存在且可打开
func (a *Adapter) TestConnection(ctx context.Context) (*adapter.ConnectionResult, error) {
	f, err := os.Open(a.exportPath)
	if err != nil {
		return &adapter.ConnectionResult{Success: false, Message: fmt.Sprintf("export file not readable: %v", err)}, nil
	}
	f.Close()
	return &adapter.ConnectionResult{Success: true, Message: "export file found"}, nil
}

// FetchDailyData 返回某天的聚合记录
func (a *Adapter) FetchDailyData(ctx context.Context, date time.Time) (*domain.NormalizedHealthData, error) {
	if err := a.ensureParsed(ctx); err != nil {
		return nil, err
	}

	bucket, ok := a.parsed.days[date.Format("2006-01-02")]
	if !ok {
		return nil, nil
	}

	rec := a.bucketToRecord(bucket, date)
	if rec.IsEmpty() {
		return nil, nil
	}
	return rec, nil
}

// FetchWorkouts 导出文件中的 Workout 元素（可选能力）
func (a *Adapter) FetchWorkouts(ctx context.Context, start, end time.Time) ([]domain.Workout, error) {
	if err := a.ensureParsed(ctx); err != nil {
		return nil, err
	}

	var workouts []domain.Workout
	for _, w := range a.parsed.workouts {
		st, err := time.Parse(appleTimeLayout, w.StartDate)
		if err != nil || st.Before(start) || st.After(end) {
			continue
		}

		out := domain.Workout{WorkoutType: w.ActivityType, StartTime: st.UTC()}
		if et, err := time.Parse(appleTimeLayout, w.EndDate); err == nil {
			out.EndTime = et.UTC()
		}
		if d, err := parseFloatAttr(w.Duration); err == nil {
			out.DurationMinutes = int(d) // 导出单位为分钟
		}
		if dist, err := parseFloatAttr(w.TotalDistance); err == nil {
			out.DistanceMeters = dist * 1000
		}
		if cal, err := parseFloatAttr(w.TotalEnergy); err == nil {
			out.Calories = int(cal)
		}
		workouts = append(workouts, out)
	}
	return workouts, nil
}

// ensureParsed 首次取数时解析导出文件并缓存
func (a *Adapter) ensureParsed(ctx context.Context) error {
	if a.parsed != nil {
		return nil
	}

	f, err := os.Open(a.exportPath)
	if err != nil {
		// 文件消失视为凭证问题：用户需要重新上传
		return &domain.AuthError{DeviceType: domain.DeviceApple, Reason: fmt.Sprintf("export file not accessible: %v", err)}
	}
	defer f.Close()

	started := time.Now()
	parsed, err := parseExport(f)
	if err != nil {
		return &domain.ParseError{DeviceType: domain.DeviceApple, Endpoint: "export.xml", Reason: err.Error()}
	}

	a.logger.Info("Parsed apple health export",
		zap.Int("days", len(parsed.days)),
		zap.Int("workouts", len(parsed.workouts)),
		zap.Duration("elapsed", time.Since(started)),
	)
	a.parsed = parsed
	return nil
}

// bucketToRecord 聚合桶转标准化记录
func (a *Adapter) bucketToRecord(b *dayBucket, date time.Time) *domain.NormalizedHealthData {
	rec := &domain.NormalizedHealthData{
		UserID:     a.userID,
		RecordDate: date.Format("2006-01-02"),
		Source:     domain.DeviceApple,
	}

	if b.hasQuantity {
		if b.Steps > 0 {
			v := int(b.Steps)
			rec.Steps = &v
		}
		if b.DistanceMeters > 0 {
			d := math.Round(b.DistanceMeters*10) / 10
			rec.DistanceMeters = &d
		}
		if b.Floors > 0 {
			v := int(b.Floors)
			rec.Floors = &v
		}
		if b.ActiveCalories > 0 {
			v := int(b.ActiveCalories)
			rec.ActiveCalories = &v
			total := int(b.ActiveCalories + b.BasalCalories)
			rec.TotalCalories = &total
		}
		if b.ExerciseMin > 0 {
			v := int(b.ExerciseMin)
			rec.ActiveMinutes = &v
		}
	}

	if len(b.HeartRateSamples) > 0 {
		avg := int(math.Round(mean(b.HeartRateSamples)))
		lo, hi := minMax(b.HeartRateSamples)
		loI, hiI := int(lo), int(hi)
		rec.AvgHeartRate = &avg
		rec.MinHeartRate = &loI
		rec.MaxHeartRate = &hiI
	}
	if len(b.RestingHeartRates) > 0 {
		v := int(math.Round(mean(b.RestingHeartRates)))
		rec.RestingHeartRate = &v
	}
	if len(b.SpO2Samples) > 0 {
		// 导出为 0-1 比例，标准化为百分比
		avg := math.Round(mean(b.SpO2Samples)*1000) / 10
		lo, _ := minMax(b.SpO2Samples)
		loPct := math.Round(lo*1000) / 10
		rec.SpO2Avg = &avg
		rec.SpO2Min = &loPct
	}
	if len(b.RespirationSamples) > 0 {
		avg := math.Round(mean(b.RespirationSamples)*10) / 10
		rec.RespirationAvg = &avg
	}
	if len(b.HRVSamples) > 0 {
		avg := math.Round(mean(b.HRVSamples)*10) / 10
		rec.HRVMillis = &avg
	}

	asleep := b.DeepSleepMin + b.RemSleepMin + b.LightSleepMin
	if asleep > 0 {
		total := int(asleep)
		rec.TotalSleepMinutes = &total
		if b.DeepSleepMin > 0 {
			v := int(b.DeepSleepMin)
			rec.DeepSleepMinutes = &v
		}
		if b.RemSleepMin > 0 {
			v := int(b.RemSleepMin)
			rec.RemSleepMinutes = &v
		}
		if b.LightSleepMin > 0 {
			v := int(b.LightSleepMin)
			rec.LightSleepMinutes = &v
		}
		if b.AwakeMin > 0 {
			v := int(b.AwakeMin)
			rec.AwakeMinutes = &v
		}
		if b.SleepStart != nil {
			s := b.SleepStart.UTC()
			rec.SleepStart = &s
		}
		if b.SleepEnd != nil {
			e := b.SleepEnd.UTC()
			rec.SleepEnd = &e
		}
	}

	return rec
}

func parseFloatAttr(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty attribute")
	}
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}
