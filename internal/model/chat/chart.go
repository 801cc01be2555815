package chat

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ChartKind is the visual form of a chart.
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
	ChartArea ChartKind = "area"
)

// Valid reports whether k is one of the supported chart kinds.
func (k ChartKind) Valid() bool {
	switch k {
	case ChartLine, ChartBar, ChartArea:
		return true
	default:
		return false
	}
}

// Row is one data record of a chart. Values are float64 or string and keep the
// field order they were written in.
type Row = *orderedmap.OrderedMap[string, any]

// ChartDescriptor is a visualization directive extracted from model output.
// Rows is never empty once attached to a turn.
type ChartDescriptor struct {
	Kind        ChartKind `json:"type"`
	Title       string    `json:"title"`
	CategoryKey string    `json:"xAxisKey"`
	Rows        []Row     `json:"data"`
}

// Series returns the plotted field names: every key seen across rows except the
// category key, in first-seen order.
func (c *ChartDescriptor) Series() []string {
	seen := make(map[string]struct{})
	var series []string
	for _, row := range c.Rows {
		if row == nil {
			continue
		}
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == c.CategoryKey {
				continue
			}
			if _, ok := seen[pair.Key]; ok {
				continue
			}
			seen[pair.Key] = struct{}{}
			series = append(series, pair.Key)
		}
	}
	return series
}
