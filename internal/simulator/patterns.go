package simulator

import (
	"math"
	"math/rand"
	"time"
)

// Pattern shapes a meter's base value over time.
type Pattern interface {
	Apply(base float64, at time.Time) float64
	Name() string
}

var (
	PatternSteady Pattern = &SteadyPattern{}
	PatternDaily  Pattern = &DailyPattern{}
	PatternWeekly Pattern = &WeeklyPattern{}
	PatternRandom Pattern = &RandomPattern{}
)

// ParsePattern falls back to steady for unknown names.
func ParsePattern(name string) Pattern {
	switch name {
	case "daily":
		return PatternDaily
	case "weekly":
		return PatternWeekly
	case "random":
		return PatternRandom
	case "gradual_rise":
		return &GradualRisePattern{StartTime: time.Now()}
	case "sine_wave":
		return &SineWavePattern{}
	default:
		return PatternSteady
	}
}

type SteadyPattern struct{}

func (p *SteadyPattern) Apply(base float64, at time.Time) float64 {
	return base
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// DailyPattern peaks during business hours and drops overnight.
type DailyPattern struct{}

func (p *DailyPattern) Apply(base float64, at time.Time) float64 {
	return base * hourModifier(at.Hour())
}

func (p *DailyPattern) Name() string {
	return "daily"
}

func hourModifier(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour >= 0 && hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

// WeeklyPattern halves weekend load and follows the daily shape on weekdays.
type WeeklyPattern struct{}

func (p *WeeklyPattern) Apply(base float64, at time.Time) float64 {
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return base * 0.5
	}
	return base * hourModifier(at.Hour())
}

func (p *WeeklyPattern) Name() string {
	return "weekly"
}

// RandomPattern scales the base by a factor in [0.5, 1.5).
type RandomPattern struct{}

func (p *RandomPattern) Apply(base float64, at time.Time) float64 {
	return base * (0.5 + rand.Float64())
}

func (p *RandomPattern) Name() string {
	return "random"
}

// GradualRisePattern adds 2% per minute since StartTime, capped at +50%.
type GradualRisePattern struct {
	StartTime time.Time
}

func (p *GradualRisePattern) Apply(base float64, at time.Time) float64 {
	minutes := at.Sub(p.StartTime).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	increasePercent := math.Min(minutes*2, 50)
	return base * (1.0 + increasePercent/100)
}

func (p *GradualRisePattern) Name() string {
	return "gradual_rise"
}

type SineWavePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p *SineWavePattern) Apply(base float64, at time.Time) float64 {
	period := p.Period
	if period == 0 {
		period = 10 * time.Minute
	}
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 20
	}

	phase := (float64(at.UnixNano()) / float64(period.Nanoseconds())) * 2 * math.Pi
	return base + math.Sin(phase)*amplitude
}

func (p *SineWavePattern) Name() string {
	return "sine_wave"
}

// Spike ramps linearly from the pattern value to Target, holds, then ends.
type Spike struct {
	Target    float64
	StartTime time.Time
	Duration  time.Duration
	RampUp    time.Duration
}

// Apply reports false once at falls outside the spike.
func (s *Spike) Apply(value float64, at time.Time) (float64, bool) {
	elapsed := at.Sub(s.StartTime)
	if elapsed < 0 || elapsed > s.Duration {
		return value, false
	}
	if s.RampUp > 0 && elapsed < s.RampUp {
		progress := float64(elapsed) / float64(s.RampUp)
		return value + (s.Target-value)*progress, true
	}
	return s.Target, true
}
