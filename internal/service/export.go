package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"healthhub/internal/domain"
	"healthhub/internal/repository"

	"github.com/xuri/excelize/v2"
)

// healthExportHeader 每日健康数据导出表头
var healthExportHeader = []string{
	"Date",
	"Source",
	"Steps",
	"Distance (m)",
	"Active Minutes",
	"Total Calories",
	"Sleep Score",
	"Total Sleep (min)",
	"Deep Sleep (min)",
	"REM Sleep (min)",
	"Light Sleep (min)",
	"Resting HR",
	"Avg HR",
	"Max HR",
	"HRV (ms)",
	"Stress Level",
	"Body Battery High",
	"Body Battery Low",
	"SpO2 Avg (%)",
	"Respiration (brpm)",
}

// ExportService 健康记录导出
type ExportService struct {
	records repository.HealthRecordRepository
}

// NewExportService 创建导出服务
func NewExportService(records repository.HealthRecordRepository) *ExportService {
	return &ExportService{records: records}
}

// ExportRangeExcel 导出日期区间内的每日记录为 Excel
func (s *ExportService) ExportRangeExcel(ctx context.Context, userID string, startDate, endDate string) ([]byte, string, error) {
	recs, err := s.records.ListRange(ctx, userID, startDate, endDate)
	if err != nil {
		return nil, "", err
	}

	data, err := generateHealthExcel(recs)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("health_data_%s_%s.xlsx", startDate, endDate)
	return data, filename, nil
}

// generateHealthExcel 生成每日健康数据 Excel 文件
func generateHealthExcel(recs []*domain.NormalizedHealthData) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 需要文件保持打开，出错路径上单独 Close

	sheetName := "Daily Health Data"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range healthExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for rowIdx, rec := range recs {
		row := rowIdx + 2
		for colIdx, value := range recordExportRow(rec) {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// recordExportRow 按表头顺序展开一条记录，空指标对应 nil（不写单元格）
func recordExportRow(rec *domain.NormalizedHealthData) []interface{} {
	return []interface{}{
		rec.RecordDate,
		string(rec.Source),
		intCell(rec.Steps),
		floatCell(rec.DistanceMeters),
		intCell(rec.ActiveMinutes),
		intCell(rec.TotalCalories),
		intCell(rec.SleepScore),
		intCell(rec.TotalSleepMinutes),
		intCell(rec.DeepSleepMinutes),
		intCell(rec.RemSleepMinutes),
		intCell(rec.LightSleepMinutes),
		intCell(rec.RestingHeartRate),
		intCell(rec.AvgHeartRate),
		intCell(rec.MaxHeartRate),
		floatCell(rec.HRVMillis),
		intCell(rec.StressLevel),
		intCell(rec.BodyBatteryHigh),
		intCell(rec.BodyBatteryLow),
		floatCell(rec.SpO2Avg),
		floatCell(rec.RespirationAvg),
	}
}

func intCell(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	// 保留一位小数，避免浮点噪声写进表格
	return mustFloat(strconv.FormatFloat(*v, 'f', 1, 64))
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
