package repository

import (
	"context"
	"database/sql"
	"testing"

	"healthhub/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRecordRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresHealthRecordRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresHealthRecordRepository(db, zap.NewNop())
	return db, mock, repo
}

func intPtr(v int) *int { return &v }

func TestUpsertDailyRecord_CoalesceMerge(t *testing.T) {
	db, mock, repo := setupRecordRepo(t)
	defer db.Close()

	// 合并语义：每个指标列都用 COALESCE(EXCLUDED.col, 旧值)，空字段不抹掉旧值
	mock.ExpectExec(`INSERT INTO daily_health_records(.|\s)+ON CONFLICT \(user_id, record_date\) DO UPDATE(.|\s)+steps = COALESCE\(EXCLUDED\.steps, daily_health_records\.steps\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &domain.NormalizedHealthData{
		UserID:     "user-1",
		RecordDate: "2026-08-20",
		Source:     domain.DeviceGarmin,
		Steps:      intPtr(8234),
	}
	require.NoError(t, repo.UpsertDailyRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDailyRecord_EmptyRecordIsNoop(t *testing.T) {
	db, mock, repo := setupRecordRepo(t)
	defer db.Close()

	// 全空记录不得产生任何 SQL
	rec := &domain.NormalizedHealthData{
		UserID:     "user-1",
		RecordDate: "2026-08-20",
		Source:     domain.DeviceGarmin,
	}
	require.NoError(t, repo.UpsertDailyRecord(context.Background(), rec))
	require.NoError(t, repo.UpsertDailyRecord(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "record_date", "source",
		"sleep_score", "total_sleep_minutes", "deep_sleep_minutes", "rem_sleep_minutes",
		"light_sleep_minutes", "awake_minutes", "sleep_start", "sleep_end",
		"resting_heart_rate", "avg_heart_rate", "max_heart_rate", "min_heart_rate",
		"hrv_millis", "hrv_status",
		"steps", "distance_meters", "floors", "active_minutes", "total_calories", "active_calories",
		"stress_level", "body_battery_high", "body_battery_low",
		"spo2_avg", "spo2_min", "respiration_avg",
	})
}

func addEmptyRow(rows *sqlmock.Rows, userID, date, source string, steps any) *sqlmock.Rows {
	return rows.AddRow(
		userID, date, source,
		nil, nil, nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil,
		steps, nil, nil, nil, nil, nil,
		nil, nil, nil,
		nil, nil, nil,
	)
}

func TestGetByDate_Found(t *testing.T) {
	db, mock, repo := setupRecordRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)+FROM daily_health_records(.|\s)+WHERE user_id = \$1 AND record_date = \$2`).
		WithArgs("user-1", "2026-08-20").
		WillReturnRows(addEmptyRow(recordRows(), "user-1", "2026-08-20", "garmin", 8234))

	rec, err := repo.GetByDate(context.Background(), "user-1", "2026-08-20")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 8234, *rec.Steps)
	assert.Nil(t, rec.SleepScore)
}

func TestGetByDate_NoRowReturnsNil(t *testing.T) {
	db, mock, repo := setupRecordRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)+FROM daily_health_records`).
		WithArgs("user-1", "2026-08-21").
		WillReturnRows(recordRows())

	rec, err := repo.GetByDate(context.Background(), "user-1", "2026-08-21")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestListRange_OrderedDesc(t *testing.T) {
	db, mock, repo := setupRecordRepo(t)
	defer db.Close()

	rows := recordRows()
	addEmptyRow(rows, "user-1", "2026-08-20", "garmin", 8234)
	addEmptyRow(rows, "user-1", "2026-08-19", "garmin", 5120)

	mock.ExpectQuery(`SELECT(.|\s)+FROM daily_health_records(.|\s)+ORDER BY record_date DESC`).
		WithArgs("user-1", "2026-08-14", "2026-08-20").
		WillReturnRows(rows)

	recs, err := repo.ListRange(context.Background(), "user-1", "2026-08-14", "2026-08-20")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2026-08-20", recs[0].RecordDate)
	assert.Equal(t, "2026-08-19", recs[1].RecordDate)
}
