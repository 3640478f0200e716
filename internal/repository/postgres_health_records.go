package repository

import (
	"context"
	"database/sql"
	"fmt"

	"healthhub/internal/domain"

	"go.uber.org/zap"
)

// PostgresHealthRecordRepository HealthRecordRepository 的 PostgreSQL 实现
//
// daily_health_records 主键 (user_id, record_date)；
// Upsert 用 COALESCE(EXCLUDED.col, 旧值) 合并，新记录为空的字段不会抹掉旧值，
// 不同来源（如 Garmin 的睡眠 + Apple 的血氧）可以叠加到同一天
type PostgresHealthRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresHealthRecordRepository 创建健康记录仓库
func NewPostgresHealthRecordRepository(db *sql.DB, logger *zap.Logger) *PostgresHealthRecordRepository {
	return &PostgresHealthRecordRepository{db: db, logger: logger}
}

var healthRecordColumns = []string{
	"sleep_score", "total_sleep_minutes", "deep_sleep_minutes", "rem_sleep_minutes",
	"light_sleep_minutes", "awake_minutes", "sleep_start", "sleep_end",
	"resting_heart_rate", "avg_heart_rate", "max_heart_rate", "min_heart_rate",
	"hrv_millis", "hrv_status",
	"steps", "distance_meters", "floors", "active_minutes", "total_calories", "active_calories",
	"stress_level", "body_battery_high", "body_battery_low",
	"spo2_avg", "spo2_min", "respiration_avg",
}

// UpsertDailyRecord 写入或合并某天记录
func (r *PostgresHealthRecordRepository) UpsertDailyRecord(ctx context.Context, rec *domain.NormalizedHealthData) error {
	if rec == nil || rec.IsEmpty() {
		// 空记录等价于"无数据"，不落空行
		return nil
	}

	query := `
		INSERT INTO daily_health_records (
			user_id, record_date, source,
			sleep_score, total_sleep_minutes, deep_sleep_minutes, rem_sleep_minutes,
			light_sleep_minutes, awake_minutes, sleep_start, sleep_end,
			resting_heart_rate, avg_heart_rate, max_heart_rate, min_heart_rate,
			hrv_millis, hrv_status,
			steps, distance_meters, floors, active_minutes, total_calories, active_calories,
			stress_level, body_battery_high, body_battery_low,
			spo2_avg, spo2_min, respiration_avg,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29,
			NOW(), NOW()
		)
		ON CONFLICT (user_id, record_date) DO UPDATE SET
			source = EXCLUDED.source,`

	for _, col := range healthRecordColumns {
		query += fmt.Sprintf("\n\t\t\t%s = COALESCE(EXCLUDED.%s, daily_health_records.%s),", col, col, col)
	}
	query += "\n\t\t\tupdated_at = NOW()"

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.RecordDate, rec.Source,
		rec.SleepScore, rec.TotalSleepMinutes, rec.DeepSleepMinutes, rec.RemSleepMinutes,
		rec.LightSleepMinutes, rec.AwakeMinutes, rec.SleepStart, rec.SleepEnd,
		rec.RestingHeartRate, rec.AvgHeartRate, rec.MaxHeartRate, rec.MinHeartRate,
		rec.HRVMillis, rec.HRVStatus,
		rec.Steps, rec.DistanceMeters, rec.Floors, rec.ActiveMinutes, rec.TotalCalories, rec.ActiveCalories,
		rec.StressLevel, rec.BodyBatteryHigh, rec.BodyBatteryLow,
		rec.SpO2Avg, rec.SpO2Min, rec.RespirationAvg,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily record: %w", err)
	}
	return nil
}

const selectHealthRecord = `
	SELECT user_id, record_date::text, source,
		sleep_score, total_sleep_minutes, deep_sleep_minutes, rem_sleep_minutes,
		light_sleep_minutes, awake_minutes, sleep_start, sleep_end,
		resting_heart_rate, avg_heart_rate, max_heart_rate, min_heart_rate,
		hrv_millis, hrv_status,
		steps, distance_meters, floors, active_minutes, total_calories, active_calories,
		stress_level, body_battery_high, body_battery_low,
		spo2_avg, spo2_min, respiration_avg
	FROM daily_health_records`

func scanHealthRecord(row interface{ Scan(...any) error }) (*domain.NormalizedHealthData, error) {
	rec := &domain.NormalizedHealthData{}
	err := row.Scan(
		&rec.UserID, &rec.RecordDate, &rec.Source,
		&rec.SleepScore, &rec.TotalSleepMinutes, &rec.DeepSleepMinutes, &rec.RemSleepMinutes,
		&rec.LightSleepMinutes, &rec.AwakeMinutes, &rec.SleepStart, &rec.SleepEnd,
		&rec.RestingHeartRate, &rec.AvgHeartRate, &rec.MaxHeartRate, &rec.MinHeartRate,
		&rec.HRVMillis, &rec.HRVStatus,
		&rec.Steps, &rec.DistanceMeters, &rec.Floors, &rec.ActiveMinutes, &rec.TotalCalories, &rec.ActiveCalories,
		&rec.StressLevel, &rec.BodyBatteryHigh, &rec.BodyBatteryLow,
		&rec.SpO2Avg, &rec.SpO2Min, &rec.RespirationAvg,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByDate 获取某天记录，无数据返回 (nil, nil)
func (r *PostgresHealthRecordRepository) GetByDate(ctx context.Context, userID string, date string) (*domain.NormalizedHealthData, error) {
	query := selectHealthRecord + ` WHERE user_id = $1 AND record_date = $2`

	rec, err := scanHealthRecord(r.db.QueryRowContext(ctx, query, userID, date))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query daily record: %w", err)
	}
	return rec, nil
}

// ListRange 获取日期区间内的记录（按日期倒序）
func (r *PostgresHealthRecordRepository) ListRange(ctx context.Context, userID string, startDate, endDate string) ([]*domain.NormalizedHealthData, error) {
	query := selectHealthRecord + `
		WHERE user_id = $1 AND record_date >= $2 AND record_date <= $3
		ORDER BY record_date DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily records: %w", err)
	}
	defer rows.Close()

	var recs []*domain.NormalizedHealthData
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
