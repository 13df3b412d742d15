package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// sparklineBlocks are block characters for 8-level vertical resolution (lowest to highest).
var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// findMinMax returns the smallest and largest values in data.
func findMinMax(data []float64) (minVal, maxVal float64) {
	if len(data) == 0 {
		return 0, 0
	}
	minVal, maxVal = data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

// normalizeValue converts a value to 0-1 range given min/max bounds.
func normalizeValue(val, minVal, maxVal float64) float64 {
	if maxVal > minVal {
		return (val - minVal) / (maxVal - minVal)
	}
	return 0.5
}

// clampInt clamps an integer to a range [0, maxVal].
func clampInt(val, maxVal int) int {
	if val < 0 {
		return 0
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// RenderSparkline renders data as a single row of block characters scaled
// between floor and the data maximum. A floor of 0 keeps an outage visible
// as a drop to the bottom row.
func RenderSparkline(data []float64, width int, floor float64, color lipgloss.Color) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}

	_, maxVal := findMinMax(data)
	resampled := resampleData(data, width)

	var b strings.Builder
	for _, val := range resampled {
		normalized := normalizeValue(val, floor, maxVal)
		idx := clampInt(int(normalized*float64(len(sparklineBlocks)-1)), len(sparklineBlocks)-1)
		b.WriteRune(sparklineBlocks[idx])
	}

	return lipgloss.NewStyle().Foreground(color).Render(b.String())
}

// resampleData resamples data to the target size.
// Downsampling keeps the minimum of each bucket so short outages survive.
// Data shorter than the target is returned unchanged.
func resampleData(data []float64, targetSize int) []float64 {
	if len(data) == 0 || targetSize <= 0 {
		return nil
	}
	if len(data) <= targetSize {
		return data
	}

	result := make([]float64, targetSize)
	bucketSize := float64(len(data)) / float64(targetSize)
	for i := 0; i < targetSize; i++ {
		start := int(float64(i) * bucketSize)
		end := int(float64(i+1) * bucketSize)
		if end > len(data) {
			end = len(data)
		}
		if start >= end {
			start = end - 1
		}

		minVal := data[start]
		for j := start + 1; j < end; j++ {
			if data[j] < minVal {
				minVal = data[j]
			}
		}
		result[i] = minVal
	}
	return result
}
