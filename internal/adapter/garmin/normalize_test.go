package garmin

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestNormalize_SleepSecondsToMinutes(t *testing.T) {
	bag := map[string]any{
		"sleep": mustDecode(t, `{
			"dailySleepDTO": {
				"sleepTimeSeconds": 25200,
				"deepSleepSeconds": 5400,
				"remSleepSeconds": 6300,
				"lightSleepSeconds": 12600,
				"awakeSleepSeconds": 900,
				"sleepScores": {"overall": {"value": 82}}
			}
		}`),
	}

	rec := normalize(bag, "user-1", testDate)

	require.NotNil(t, rec.TotalSleepMinutes)
	assert.Equal(t, 420, *rec.TotalSleepMinutes)
	assert.Equal(t, 90, *rec.DeepSleepMinutes)
	assert.Equal(t, 105, *rec.RemSleepMinutes)
	assert.Equal(t, 210, *rec.LightSleepMinutes)
	assert.Equal(t, 15, *rec.AwakeMinutes)
	assert.Equal(t, 82, *rec.SleepScore)

	// 未出现的指标保持为空
	assert.Nil(t, rec.Steps)
	assert.Nil(t, rec.RestingHeartRate)
}

func TestNormalize_MillisecondDurationHeuristic(t *testing.T) {
	// 个别端点把秒给成毫秒，按量级识别
	bag := map[string]any{
		"sleep": mustDecode(t, `{"dailySleepDTO": {"sleepTimeSeconds": 25200000}}`),
	}

	rec := normalize(bag, "user-1", testDate)
	require.NotNil(t, rec.TotalSleepMinutes)
	assert.Equal(t, 420, *rec.TotalSleepMinutes)
}

func TestNormalize_SummaryOnlySleepEndpointMissing(t *testing.T) {
	// 每日汇总有步数、睡眠端点整体失败 → 步数提取成功，睡眠字段全空
	bag := map[string]any{
		"summary": mustDecode(t, `{"totalSteps": 8234}`),
	}

	rec := normalize(bag, "user-1", testDate)

	require.NotNil(t, rec.Steps)
	assert.Equal(t, 8234, *rec.Steps)
	assert.Nil(t, rec.TotalSleepMinutes)
	assert.Nil(t, rec.SleepScore)
	assert.False(t, rec.IsEmpty())
}

func TestNormalize_AliasKeysFallback(t *testing.T) {
	// 区域变体：字段名不同但语义一致
	bag := map[string]any{
		"summary": mustDecode(t, `{
			"steps": "9120",
			"distanceInMeters": 6544.2,
			"calories": 2310,
			"restingHR": 52
		}`),
	}

	rec := normalize(bag, "user-1", testDate)

	assert.Equal(t, 9120, *rec.Steps)
	assert.InDelta(t, 6544.2, *rec.DistanceMeters, 0.001)
	assert.Equal(t, 2310, *rec.TotalCalories)
	assert.Equal(t, 52, *rec.RestingHeartRate)
}

func TestNormalize_FloorsIgnoresMeterQuantities(t *testing.T) {
	// floorsAscendedInMeters 是爬升高度（米），不是楼层数
	bag := map[string]any{
		"summary": mustDecode(t, `{"floorsAscendedInMeters": 36.5, "totalSteps": 100}`),
	}

	rec := normalize(bag, "user-1", testDate)

	assert.Nil(t, rec.Floors)
	assert.Equal(t, 100, *rec.Steps)

	bag = map[string]any{
		"summary": mustDecode(t, `{"floorsAscended": 12, "floorsAscendedInMeters": 36.5}`),
	}
	rec = normalize(bag, "user-1", testDate)
	require.NotNil(t, rec.Floors)
	assert.Equal(t, 12, *rec.Floors)
}

func TestNormalize_PerMetricEndpointWinsOverSummary(t *testing.T) {
	bag := map[string]any{
		"summary":   mustDecode(t, `{"restingHeartRate": 60}`),
		"heartrate": mustDecode(t, `{"restingHeartRate": 55, "maxHeartRate": 148, "minHeartRate": 47}`),
	}

	rec := normalize(bag, "user-1", testDate)

	// 专项端点优先于汇总兜底
	assert.Equal(t, 55, *rec.RestingHeartRate)
	assert.Equal(t, 148, *rec.MaxHeartRate)
	assert.Equal(t, 47, *rec.MinHeartRate)
}

func TestNormalize_BodyBatteryListShape(t *testing.T) {
	// 身体电量端点返回单日报告列表
	bag := map[string]any{
		"bodybattery": mustDecode(t, `[{
			"bodyBatteryValuesArray": [[1755648000000, 78], [1755651600000, 64], [1755655200000, 91]]
		}]`),
	}

	rec := normalize(bag, "user-1", testDate)

	require.NotNil(t, rec.BodyBatteryHigh)
	assert.Equal(t, 91, *rec.BodyBatteryHigh)
	assert.Equal(t, 64, *rec.BodyBatteryLow)
}

func TestNormalize_BodyBatteryAggregateShape(t *testing.T) {
	bag := map[string]any{
		"bodybattery": mustDecode(t, `{"highestBodyBatteryValue": 88, "lowestBodyBatteryValue": 21}`),
	}

	rec := normalize(bag, "user-1", testDate)
	assert.Equal(t, 88, *rec.BodyBatteryHigh)
	assert.Equal(t, 21, *rec.BodyBatteryLow)
}

func TestNormalize_StressAndSpO2(t *testing.T) {
	bag := map[string]any{
		"stress": mustDecode(t, `{"avgStressLevel": 31}`),
		"sleep": mustDecode(t, `{
			"dailySleepDTO": {
				"averageSpO2Value": 95.2,
				"lowestSpO2Value": 89,
				"averageRespirationValue": 14.6,
				"avgOvernightHrv": 42.5,
				"hrvStatus": "BALANCED"
			}
		}`),
	}

	rec := normalize(bag, "user-1", testDate)

	assert.Equal(t, 31, *rec.StressLevel)
	assert.InDelta(t, 95.2, *rec.SpO2Avg, 0.001)
	assert.InDelta(t, 89.0, *rec.SpO2Min, 0.001)
	assert.InDelta(t, 14.6, *rec.RespirationAvg, 0.001)
	assert.InDelta(t, 42.5, *rec.HRVMillis, 0.001)
	assert.Equal(t, "BALANCED", *rec.HRVStatus)
}

func TestNormalize_NestedGarbageDoesNotCrash(t *testing.T) {
	// 厂家把标量多包了一层对象：该字段未命中即可，不影响其余字段
	bag := map[string]any{
		"summary": mustDecode(t, `{
			"totalSteps": {"value": 8234},
			"totalKilocalories": 2400
		}`),
	}

	rec := normalize(bag, "user-1", testDate)

	assert.Nil(t, rec.Steps)
	require.NotNil(t, rec.TotalCalories)
	assert.Equal(t, 2400, *rec.TotalCalories)
}

func TestNormalize_SleepTimestamps(t *testing.T) {
	bag := map[string]any{
		"sleep": mustDecode(t, `{
			"dailySleepDTO": {
				"sleepStartTimestampGMT": 1755640800000,
				"sleepEndTimestampGMT": 1755666000000
			}
		}`),
	}

	rec := normalize(bag, "user-1", testDate)

	require.NotNil(t, rec.SleepStart)
	require.NotNil(t, rec.SleepEnd)
	assert.Equal(t, time.UnixMilli(1755640800000).UTC(), *rec.SleepStart)
	assert.Equal(t, time.UnixMilli(1755666000000).UTC(), *rec.SleepEnd)
}

func TestNormalize_EmptyBagYieldsEmptyRecord(t *testing.T) {
	rec := normalize(map[string]any{}, "user-1", testDate)
	assert.True(t, rec.IsEmpty())
	assert.Equal(t, "2026-08-20", rec.RecordDate)
}

func TestNormalize_ActiveMinutesIntensityFallback(t *testing.T) {
	bag := map[string]any{
		"summary": mustDecode(t, `{"moderateIntensityMinutes": 25, "vigorousIntensityMinutes": 12}`),
	}

	rec := normalize(bag, "user-1", testDate)
	require.NotNil(t, rec.ActiveMinutes)
	assert.Equal(t, 37, *rec.ActiveMinutes)
}
