package domain

import "time"

// DeviceType 设备厂家类型
type DeviceType string

const (
	DeviceGarmin DeviceType = "garmin"
	DeviceHuawei DeviceType = "huawei"
	DeviceApple  DeviceType = "apple"
	DeviceXiaomi DeviceType = "xiaomi"
	DeviceFitbit DeviceType = "fitbit"
)

// AuthType 设备认证方式
type AuthType string

const (
	AuthPassword AuthType = "password"
	AuthOAuth2   AuthType = "oauth2"
	AuthFile     AuthType = "file"
)

// NormalizedHealthData 标准化每日健康数据
// 所有指标字段均为可空指针：缺某项指标不是错误，
// 全部为空的记录等价于"当天无数据"，编排器不会为其落库
type NormalizedHealthData struct {
	UserID     string     `json:"user_id"`
	RecordDate string     `json:"record_date"` // YYYY-MM-DD
	Source     DeviceType `json:"source"`

	// ========== 睡眠 ==========
	SleepScore        *int       `json:"sleep_score,omitempty"`         // 0-100
	TotalSleepMinutes *int       `json:"total_sleep_minutes,omitempty"`
	DeepSleepMinutes  *int       `json:"deep_sleep_minutes,omitempty"`
	RemSleepMinutes   *int       `json:"rem_sleep_minutes,omitempty"`
	LightSleepMinutes *int       `json:"light_sleep_minutes,omitempty"`
	AwakeMinutes      *int       `json:"awake_minutes,omitempty"`
	SleepStart        *time.Time `json:"sleep_start,omitempty"`
	SleepEnd          *time.Time `json:"sleep_end,omitempty"`

	// ========== 心率 ==========
	RestingHeartRate *int `json:"resting_heart_rate,omitempty"`
	AvgHeartRate     *int `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int `json:"max_heart_rate,omitempty"`
	MinHeartRate     *int `json:"min_heart_rate,omitempty"`

	// ========== HRV ==========
	HRVMillis *float64 `json:"hrv_millis,omitempty"`
	HRVStatus *string  `json:"hrv_status,omitempty"`

	// ========== 活动 ==========
	Steps          *int     `json:"steps,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	Floors         *int     `json:"floors,omitempty"`
	ActiveMinutes  *int     `json:"active_minutes,omitempty"`
	TotalCalories  *int     `json:"total_calories,omitempty"`
	ActiveCalories *int     `json:"active_calories,omitempty"`

	// ========== 压力与恢复 ==========
	StressLevel     *int `json:"stress_level,omitempty"` // 0-100
	BodyBatteryHigh *int `json:"body_battery_high,omitempty"`
	BodyBatteryLow  *int `json:"body_battery_low,omitempty"`

	// ========== 血氧与呼吸 ==========
	SpO2Avg        *float64 `json:"spo2_avg,omitempty"`
	SpO2Min        *float64 `json:"spo2_min,omitempty"`
	RespirationAvg *float64 `json:"respiration_avg,omitempty"` // 次/分钟
}

// IsEmpty 判断记录是否不含任何有效指标
func (d *NormalizedHealthData) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.SleepScore == nil &&
		d.TotalSleepMinutes == nil &&
		d.DeepSleepMinutes == nil &&
		d.RemSleepMinutes == nil &&
		d.LightSleepMinutes == nil &&
		d.AwakeMinutes == nil &&
		d.SleepStart == nil &&
		d.SleepEnd == nil &&
		d.RestingHeartRate == nil &&
		d.AvgHeartRate == nil &&
		d.MaxHeartRate == nil &&
		d.MinHeartRate == nil &&
		d.HRVMillis == nil &&
		d.HRVStatus == nil &&
		d.Steps == nil &&
		d.DistanceMeters == nil &&
		d.Floors == nil &&
		d.ActiveMinutes == nil &&
		d.TotalCalories == nil &&
		d.ActiveCalories == nil &&
		d.StressLevel == nil &&
		d.BodyBatteryHigh == nil &&
		d.BodyBatteryLow == nil &&
		d.SpO2Avg == nil &&
		d.SpO2Min == nil &&
		d.RespirationAvg == nil
}

// SyncOutcome 单次同步结果（每次编排调用产生一个，不落库）
type SyncOutcome struct {
	DeviceType DeviceType `json:"device_type"`
	SyncedDays int        `json:"synced_days"`
	FailedDays int        `json:"failed_days"`
	Message    string     `json:"message"`
}

// HeartRateSample 心率采样点（可选能力）
type HeartRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
}

// Workout 运动记录（可选能力）
type Workout struct {
	WorkoutType     string    `json:"workout_type"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	DistanceMeters  float64   `json:"distance_meters"`
	Calories        int       `json:"calories"`
}
