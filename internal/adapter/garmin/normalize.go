package garmin

import (
	"time"

	"healthhub/internal/adapter/rawval"
	"healthhub/internal/domain"
)

// normalize 把五个端点的原始载荷袋提炼为标准化记录
//
// Garmin 同一指标会以 3-6 种字段名出现，随端点和账号区域漂移，
// 且时而是标量、时而包一层 DTO、时而是单元素列表。
// 因此每个字段走固定优先级链：
//   专项端点嵌套值 → 专项端点别名键 → 每日汇总兜底键
// 第一个类型正确的非空值胜出，全部未命中则该字段留空。
//
// bag 的键：summary / sleep / heartrate / bodybattery / stress
func normalize(bag map[string]any, userID string, date time.Time) *domain.NormalizedHealthData {
	rec := &domain.NormalizedHealthData{
		UserID:     userID,
		RecordDate: date.Format("2006-01-02"),
		Source:     domain.DeviceGarmin,
	}

	summary, _ := rawval.Map(bag["summary"])

	extractSleep(bag, summary, rec)
	extractHeartRate(bag, summary, rec)
	extractActivity(summary, rec)
	extractStress(bag, summary, rec)
	extractBodyBattery(bag, summary, rec)
	extractSpO2AndRespiration(bag, summary, rec)

	return rec
}

// extractSleep 睡眠字段
// 专项载荷通常是 {"dailySleepDTO": {...}}，老账号偶尔直接平铺
func extractSleep(bag map[string]any, summary map[string]any, rec *domain.NormalizedHealthData) {
	sleep, _ := rawval.Map(bag["sleep"])

	dto, ok := rawval.Map(rawval.Dig(sleep, "dailySleepDTO"))
	if !ok {
		dto = sleep
	}

	if raw, ok := rawval.FirstFloat(dto, "sleepTimeSeconds", "totalSleepSeconds", "sleepTimeInSeconds", "sleepDurationInSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.TotalSleepMinutes = &m
	} else if raw, ok := rawval.FirstFloat(summary, "sleepingSeconds", "sleepDuration"); ok {
		m := rawval.DurationMinutes(raw)
		rec.TotalSleepMinutes = &m
	}

	if raw, ok := rawval.FirstFloat(dto, "deepSleepSeconds", "deepSleepTimeSeconds", "deepSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.DeepSleepMinutes = &m
	}
	if raw, ok := rawval.FirstFloat(dto, "remSleepSeconds", "remSleepTimeSeconds", "remSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.RemSleepMinutes = &m
	}
	if raw, ok := rawval.FirstFloat(dto, "lightSleepSeconds", "lightSleepTimeSeconds", "lightSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.LightSleepMinutes = &m
	}
	if raw, ok := rawval.FirstFloat(dto, "awakeSleepSeconds", "awakeTimeSeconds", "awakeSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.AwakeMinutes = &m
	}

	// 睡眠评分藏在 sleepScores.overall.value，部分区域直接给 sleepScore
	if v, ok := rawval.Int(rawval.Dig(dto, "sleepScores", "overall", "value")); ok {
		rec.SleepScore = &v
	} else if v, ok := rawval.FirstInt(dto, "sleepScore", "overallSleepScore"); ok {
		rec.SleepScore = &v
	}

	// 起止时间为 GMT 毫秒时间戳
	if ts, ok := rawval.FirstFloat(dto, "sleepStartTimestampGMT", "sleepStartTimestampLocal"); ok {
		t := time.UnixMilli(int64(ts)).UTC()
		rec.SleepStart = &t
	}
	if ts, ok := rawval.FirstFloat(dto, "sleepEndTimestampGMT", "sleepEndTimestampLocal"); ok {
		t := time.UnixMilli(int64(ts)).UTC()
		rec.SleepEnd = &t
	}

	// 夜间 HRV 挂在睡眠 DTO 下
	if f, ok := rawval.FirstFloat(dto, "avgOvernightHrv", "averageHrv", "hrvValue"); ok {
		rec.HRVMillis = &f
	}
	if s, ok := rawval.FirstString(dto, "hrvStatus"); ok {
		rec.HRVStatus = &s
	} else if s, ok := rawval.String(rawval.Dig(sleep, "hrvSummary", "status")); ok {
		rec.HRVStatus = &s
	}
	if rec.HRVMillis == nil {
		if f, ok := rawval.Float(rawval.Dig(sleep, "hrvSummary", "lastNightAvg")); ok {
			rec.HRVMillis = &f
		}
	}
}

// extractHeartRate 心率字段
func extractHeartRate(bag map[string]any, summary map[string]any, rec *domain.NormalizedHealthData) {
	hr, _ := rawval.Map(bag["heartrate"])

	if v, ok := rawval.FirstInt(hr, "restingHeartRate", "restingHR", "currentDayRestingHeartRate"); ok {
		rec.RestingHeartRate = &v
	} else if v, ok := rawval.FirstInt(summary, "restingHeartRate", "restingHR"); ok {
		rec.RestingHeartRate = &v
	}

	if v, ok := rawval.FirstInt(hr, "maxHeartRate", "maxHR"); ok {
		rec.MaxHeartRate = &v
	} else if v, ok := rawval.FirstInt(summary, "maxHeartRate", "maxHR"); ok {
		rec.MaxHeartRate = &v
	}

	if v, ok := rawval.FirstInt(hr, "minHeartRate", "minHR"); ok {
		rec.MinHeartRate = &v
	} else if v, ok := rawval.FirstInt(summary, "minHeartRate", "minHR"); ok {
		rec.MinHeartRate = &v
	}

	if v, ok := rawval.FirstInt(hr, "averageHeartRate", "avgHeartRate", "averageHR"); ok {
		rec.AvgHeartRate = &v
	} else if v, ok := rawval.FirstInt(summary, "averageHeartRate", "avgHeartRate"); ok {
		rec.AvgHeartRate = &v
	}
}

// extractActivity 活动字段（只有每日汇总提供）
func extractActivity(summary map[string]any, rec *domain.NormalizedHealthData) {
	if v, ok := rawval.FirstInt(summary, "totalSteps", "steps", "dailySteps"); ok {
		rec.Steps = &v
	}
	if f, ok := rawval.FirstFloat(summary, "totalDistanceMeters", "distanceInMeters", "totalDistance"); ok {
		rec.DistanceMeters = &f
	}
	if v, ok := rawval.FirstInt(summary, "floorsAscended", "floorsClimbed"); ok {
		rec.Floors = &v
	}
	if v, ok := rawval.FirstInt(summary, "totalKilocalories", "totalCalories", "calories"); ok {
		rec.TotalCalories = &v
	}
	if v, ok := rawval.FirstInt(summary, "activeKilocalories", "activeCalories", "wellnessActiveKilocalories"); ok {
		rec.ActiveCalories = &v
	}

	// 活动分钟：直接给 activeMinutes 的账号优先；
	// 否则按中等强度 + 高强度分钟合计；再兜底用活跃秒数换算
	if v, ok := rawval.FirstInt(summary, "activeMinutes"); ok {
		rec.ActiveMinutes = &v
	} else if moderate, okM := rawval.FirstInt(summary, "moderateIntensityMinutes"); okM {
		vigorous, _ := rawval.FirstInt(summary, "vigorousIntensityMinutes")
		total := moderate + vigorous
		rec.ActiveMinutes = &total
	} else if raw, ok := rawval.FirstFloat(summary, "activeSeconds", "highlyActiveSeconds"); ok {
		m := rawval.DurationMinutes(raw)
		rec.ActiveMinutes = &m
	}
}

// extractStress 压力字段
func extractStress(bag map[string]any, summary map[string]any, rec *domain.NormalizedHealthData) {
	stress, _ := rawval.Map(bag["stress"])

	if v, ok := rawval.FirstInt(stress, "avgStressLevel", "overallStressLevel", "averageStressLevel"); ok && v >= 0 {
		rec.StressLevel = &v
	} else if v, ok := rawval.FirstInt(summary, "averageStressLevel", "avgStressLevel"); ok && v >= 0 {
		rec.StressLevel = &v
	}
}

// extractBodyBattery 身体电量字段
// 该端点时而返回对象、时而返回单日报告列表，两种都兼容
func extractBodyBattery(bag map[string]any, summary map[string]any, rec *domain.NormalizedHealthData) {
	raw := bag["bodybattery"]

	bb, ok := rawval.Map(raw)
	if !ok {
		if list, isList := raw.([]any); isList && len(list) > 0 {
			bb, _ = rawval.Map(list[0])
		}
	}

	if v, ok := rawval.FirstInt(bb, "highestBodyBatteryValue", "bodyBatteryHighestValue", "maxBodyBattery", "charged"); ok {
		rec.BodyBatteryHigh = &v
	} else if v, ok := rawval.FirstInt(summary, "bodyBatteryHighestValue", "bodyBatteryChargedValue"); ok {
		rec.BodyBatteryHigh = &v
	}

	if v, ok := rawval.FirstInt(bb, "lowestBodyBatteryValue", "bodyBatteryLowestValue", "minBodyBattery"); ok {
		rec.BodyBatteryLow = &v
	} else if v, ok := rawval.FirstInt(summary, "bodyBatteryLowestValue", "bodyBatteryDrainedValue"); ok {
		rec.BodyBatteryLow = &v
	}

	// 没有聚合值时从采样数组 [[ts, level], ...] 兜底计算
	if rec.BodyBatteryHigh == nil && rec.BodyBatteryLow == nil {
		samples, ok := rawval.Dig(bb, "bodyBatteryValuesArray").([]any)
		if !ok || len(samples) == 0 {
			return
		}
		high, low := -1, 101
		for _, s := range samples {
			pair, ok := s.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			level, ok := rawval.Int(pair[1])
			if !ok {
				continue
			}
			if level > high {
				high = level
			}
			if level < low {
				low = level
			}
		}
		if high >= 0 {
			rec.BodyBatteryHigh = &high
		}
		if low <= 100 {
			rec.BodyBatteryLow = &low
		}
	}
}

// extractSpO2AndRespiration 血氧与呼吸
// 数据可能出现在睡眠 DTO 或每日汇总，取第一个命中的
func extractSpO2AndRespiration(bag map[string]any, summary map[string]any, rec *domain.NormalizedHealthData) {
	sleep, _ := rawval.Map(bag["sleep"])
	dto, ok := rawval.Map(rawval.Dig(sleep, "dailySleepDTO"))
	if !ok {
		dto = sleep
	}

	if f, ok := rawval.FirstFloat(dto, "averageSpO2Value", "averageSpO2", "avgSleepSpO2"); ok {
		rec.SpO2Avg = &f
	} else if f, ok := rawval.FirstFloat(summary, "averageSpo2", "averageSpO2Value"); ok {
		rec.SpO2Avg = &f
	}

	if f, ok := rawval.FirstFloat(dto, "lowestSpO2Value", "lowestSpO2", "minSleepSpO2"); ok {
		rec.SpO2Min = &f
	} else if f, ok := rawval.FirstFloat(summary, "lowestSpo2", "lowestSpO2Value"); ok {
		rec.SpO2Min = &f
	}

	if f, ok := rawval.FirstFloat(dto, "averageRespirationValue", "avgSleepRespirationValue"); ok {
		rec.RespirationAvg = &f
	} else if f, ok := rawval.FirstFloat(summary, "avgWakingRespirationValue", "averageRespirationValue", "respirationAvgValue"); ok {
		rec.RespirationAvg = &f
	}
}
