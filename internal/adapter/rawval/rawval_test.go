package rawval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat_AcceptedShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"float64", 72.5, 72.5},
		{"int", 8234, 8234},
		{"numeric string", "98.6", 98.6},
		{"json.Number", json.Number("61"), 61},
		{"single element list", []any{float64(420)}, 420},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Float(tc.in)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFloat_RejectedShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"map", map[string]any{"value": 1}},
		{"multi element list", []any{1.0, 2.0}},
		{"non numeric string", "n/a"},
		{"bool", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Float(tc.in)
			assert.False(t, ok)
		})
	}
}

func TestDig(t *testing.T) {
	payload := map[string]any{
		"dailySleepDTO": map[string]any{
			"sleepScores": map[string]any{
				"overall": map[string]any{"value": float64(82)},
			},
		},
	}

	v := Dig(payload, "dailySleepDTO", "sleepScores", "overall", "value")
	f, ok := Float(v)
	assert.True(t, ok)
	assert.Equal(t, float64(82), f)

	// 中间层缺失
	assert.Nil(t, Dig(payload, "dailySleepDTO", "missing", "value"))
	// 中间层不是对象
	assert.Nil(t, Dig(payload, "dailySleepDTO", "sleepScores", "overall", "value", "deeper"))
}

func TestFirstFloat_PriorityOrder(t *testing.T) {
	bag := map[string]any{
		"totalSteps": "not a number",
		"steps":      float64(8234),
		"dailySteps": float64(1),
	}

	// 第一个键类型不对，落到第二个
	got, ok := FirstFloat(bag, "totalSteps", "steps", "dailySteps")
	assert.True(t, ok)
	assert.Equal(t, float64(8234), got)

	_, ok = FirstFloat(bag, "missingA", "missingB")
	assert.False(t, ok)

	_, ok = FirstFloat(nil, "steps")
	assert.False(t, ok)
}

func TestDurationMinutes(t *testing.T) {
	// 秒
	assert.Equal(t, 420, DurationMinutes(25200))
	// 毫秒（量级启发式）
	assert.Equal(t, 420, DurationMinutes(25200000))
	// 恰好一整天按秒处理
	assert.Equal(t, 1440, DurationMinutes(86400))
}
