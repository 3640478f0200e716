package apple

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Apple Health 导出格式：export.xml 内大量
// <Record type="HKQuantityTypeIdentifier..." value="..." startDate="..." endDate="..."/>
// 以及 <Workout> 元素。文件可达数 GB，必须流式解析。
//
// 聚合规则：
//   - 数量型（步数、卡路里、距离、爬楼）同日求和
//   - 采样型（心率、血氧、呼吸、HRV）同日收集后取均值/极值
//   - 睡眠分析类别记录按阶段累加分钟数

const appleTimeLayout = "2006-01-02 15:04:05 -0700"

// dayBucket 单日聚合桶，和 HTTP 适配器内部的原始袋对齐
type dayBucket struct {
	Steps          float64
	DistanceMeters float64
	ActiveCalories float64
	BasalCalories  float64
	Floors         float64
	ExerciseMin    float64

	HeartRateSamples   []float64
	RestingHeartRates  []float64
	SpO2Samples        []float64 // 比例值 0-1，出桶时换算为百分比
	RespirationSamples []float64
	HRVSamples         []float64

	DeepSleepMin  float64
	RemSleepMin   float64
	LightSleepMin float64
	AwakeMin      float64
	InBedMin      float64
	SleepStart    *time.Time
	SleepEnd      *time.Time

	hasQuantity bool
}

// xmlRecord Record 元素的属性投影
type xmlRecord struct {
	Type      string `xml:"type,attr"`
	Value     string `xml:"value,attr"`
	StartDate string `xml:"startDate,attr"`
	EndDate   string `xml:"endDate,attr"`
}

// xmlWorkout Workout 元素的属性投影
type xmlWorkout struct {
	ActivityType  string `xml:"workoutActivityType,attr"`
	Duration      string `xml:"duration,attr"`
	TotalDistance string `xml:"totalDistance,attr"`
	TotalEnergy   string `xml:"totalEnergyBurned,attr"`
	StartDate     string `xml:"startDate,attr"`
	EndDate       string `xml:"endDate,attr"`
}

// parsedExport 解析结果：日期 -> 聚合桶
type parsedExport struct {
	days     map[string]*dayBucket
	workouts []xmlWorkout
}

// parseExport 流式解析 export.xml
func parseExport(r io.Reader) (*parsedExport, error) {
	decoder := xml.NewDecoder(r)
	out := &parsedExport{days: make(map[string]*dayBucket)}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "Record":
			var rec xmlRecord
			if err := decoder.DecodeElement(&rec, &start); err != nil {
				// 单条记录损坏不拖垮整个文件
				continue
			}
			out.ingestRecord(&rec)
		case "Workout":
			var w xmlWorkout
			if err := decoder.DecodeElement(&w, &start); err != nil {
				continue
			}
			out.workouts = append(out.workouts, w)
		default:
			// 其余元素（ExportDate、Me、ActivitySummary）跳过
		}
	}

	return out, nil
}

func (p *parsedExport) bucketFor(dateKey string) *dayBucket {
	b, ok := p.days[dateKey]
	if !ok {
		b = &dayBucket{}
		p.days[dateKey] = b
	}
	return b
}

func (p *parsedExport) ingestRecord(rec *xmlRecord) {
	start, err := time.Parse(appleTimeLayout, rec.StartDate)
	if err != nil {
		return
	}
	dateKey := start.Format("2006-01-02")

	// 睡眠分析是类别型记录，时长来自起止时间差
	if rec.Type == "HKCategoryTypeIdentifierSleepAnalysis" {
		end, err := time.Parse(appleTimeLayout, rec.EndDate)
		if err != nil {
			return
		}
		// 跨零点的睡眠按起床日归桶，和厂家云端 API 的口径一致
		b := p.bucketFor(end.Format("2006-01-02"))
		minutes := end.Sub(start).Minutes()

		switch rec.Value {
		case "HKCategoryValueSleepAnalysisAsleepDeep":
			b.DeepSleepMin += minutes
		case "HKCategoryValueSleepAnalysisAsleepREM":
			b.RemSleepMin += minutes
		case "HKCategoryValueSleepAnalysisAsleepCore", "HKCategoryValueSleepAnalysisAsleep":
			b.LightSleepMin += minutes
		case "HKCategoryValueSleepAnalysisAwake":
			b.AwakeMin += minutes
		case "HKCategoryValueSleepAnalysisInBed":
			b.InBedMin += minutes
		default:
			return
		}

		if b.SleepStart == nil || start.Before(*b.SleepStart) {
			s := start
			b.SleepStart = &s
		}
		if b.SleepEnd == nil || end.After(*b.SleepEnd) {
			e := end
			b.SleepEnd = &e
		}
		return
	}

	value, err := strconv.ParseFloat(rec.Value, 64)
	if err != nil {
		return
	}

	b := p.bucketFor(dateKey)
	switch rec.Type {
	case "HKQuantityTypeIdentifierStepCount":
		b.Steps += value
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierDistanceWalkingRunning":
		// 导出单位为 km
		b.DistanceMeters += value * 1000
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierFlightsClimbed":
		b.Floors += value
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierActiveEnergyBurned":
		b.ActiveCalories += value
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierBasalEnergyBurned":
		b.BasalCalories += value
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierAppleExerciseTime":
		b.ExerciseMin += value
		b.hasQuantity = true
	case "HKQuantityTypeIdentifierHeartRate":
		b.HeartRateSamples = append(b.HeartRateSamples, value)
	case "HKQuantityTypeIdentifierRestingHeartRate":
		b.RestingHeartRates = append(b.RestingHeartRates, value)
	case "HKQuantityTypeIdentifierOxygenSaturation":
		b.SpO2Samples = append(b.SpO2Samples, value)
	case "HKQuantityTypeIdentifierRespiratoryRate":
		b.RespirationSamples = append(b.RespirationSamples, value)
	case "HKQuantityTypeIdentifierHeartRateVariabilitySDNN":
		b.HRVSamples = append(b.HRVSamples, value)
	}
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func minMax(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}
