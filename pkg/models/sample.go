package models

import (
	"sort"
	"time"
)

// StatisticKind selects which aggregate of a period is compared against the threshold.
type StatisticKind string

const (
	StatisticAvg   StatisticKind = "avg"
	StatisticMax   StatisticKind = "max"
	StatisticMin   StatisticKind = "min"
	StatisticSum   StatisticKind = "sum"
	StatisticCount StatisticKind = "count"
)

func (k StatisticKind) IsValid() bool {
	switch k {
	case StatisticAvg, StatisticMax, StatisticMin, StatisticSum, StatisticCount:
		return true
	default:
		return false
	}
}

// Sample is one aggregate measurement over a single period.
type Sample struct {
	Kind        StatisticKind `json:"kind"`
	Value       float64       `json:"value"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
}

func NewSample(kind StatisticKind, value float64) Sample {
	return Sample{Kind: kind, Value: value}
}

// Filter is one equality constraint on the resource a metric query targets.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// StatisticsQuery describes the statistics an alarm needs for one evaluation.
type StatisticsQuery struct {
	MetricName        string
	Statistic         StatisticKind
	Period            time.Duration
	EvaluationPeriods int
	MatchingMetadata  map[string]string
	Start             time.Time
	End               time.Time
}

// NewStatisticsQuery covers the most recent evaluation_periods windows ending at now.
func NewStatisticsQuery(alarm *Alarm, now time.Time) StatisticsQuery {
	window := alarm.Period * time.Duration(alarm.EvaluationPeriods)
	return StatisticsQuery{
		MetricName:        alarm.MetricName,
		Statistic:         alarm.Statistic,
		Period:            alarm.Period,
		EvaluationPeriods: alarm.EvaluationPeriods,
		MatchingMetadata:  alarm.MatchingMetadata,
		Start:             now.Add(-window),
		End:               now,
	}
}

// Filters returns the matching metadata as filters sorted by field.
func (q StatisticsQuery) Filters() []Filter {
	filters := make([]Filter, 0, len(q.MatchingMetadata))
	for field, value := range q.MatchingMetadata {
		filters = append(filters, Filter{Field: field, Value: value})
	}
	sort.Slice(filters, func(i, j int) bool {
		return filters[i].Field < filters[j].Field
	})
	return filters
}
