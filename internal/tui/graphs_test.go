package tui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRenderSparkline(t *testing.T) {
	tests := []struct {
		name  string
		data  []float64
		width int
		want  string
	}{
		{"empty", nil, 10, ""},
		{"zero width", []float64{1}, 0, ""},
		{"steady mains", []float64{230, 230, 230}, 10, "███"},
		{"outage", []float64{230, 0, 230}, 10, "█▁█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderSparkline(tt.data, tt.width, 0, ColorGraph))
		})
	}
}

func TestRenderSparkline_Downsamples(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = 230
	}
	data[50] = 0

	out := RenderSparkline(data, 10, 0, ColorGraph)
	assert.Equal(t, 10, utf8.RuneCountInString(out))
	assert.Contains(t, out, "▁")
}

func TestResampleData(t *testing.T) {
	assert.Nil(t, resampleData(nil, 5))
	assert.Equal(t, []float64{1, 2}, resampleData([]float64{1, 2}, 5))
	assert.Equal(t, []float64{1, 3}, resampleData([]float64{1, 2, 3, 4}, 2))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, 0.5, normalizeValue(5, 0, 10))
	assert.Equal(t, 0.5, normalizeValue(5, 5, 5))
	assert.Equal(t, 0, clampInt(-1, 7))
	assert.Equal(t, 7, clampInt(9, 7))
}
