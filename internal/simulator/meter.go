package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// sampleInterval is the simulated raw sample spacing used to derive count and sum.
const sampleInterval = 10 * time.Second

type MeterConfig struct {
	Base     float64
	Variance float64
	Pattern  Pattern
}

// MeterSim generates a statistics series for one meter name.
type MeterSim struct {
	name     string
	base     float64
	variance float64
	pattern  Pattern
	spike    *Spike
	rng      *rand.Rand
	mu       sync.Mutex
}

func NewMeterSim(name string, cfg MeterConfig) *MeterSim {
	pattern := cfg.Pattern
	if pattern == nil {
		pattern = PatternSteady
	}
	return &MeterSim{
		name:     name,
		base:     cfg.Base,
		variance: cfg.Variance,
		pattern:  pattern,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Statistic mirrors one element of the meter statistics API response.
type Statistic struct {
	Avg           float64   `json:"avg"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Sum           float64   `json:"sum"`
	Count         int       `json:"count"`
	Period        int       `json:"period"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	Duration      float64   `json:"duration"`
	DurationStart time.Time `json:"duration_start"`
	DurationEnd   time.Time `json:"duration_end"`
	Unit          string    `json:"unit"`
}

// Statistics returns one aggregate per period between start and end, oldest first.
func (m *MeterSim) Statistics(start, end time.Time, period time.Duration) []Statistic {
	if period <= 0 || !end.After(start) {
		return []Statistic{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	count := int(period / sampleInterval)
	if count < 1 {
		count = 1
	}

	stats := make([]Statistic, 0, int(end.Sub(start)/period)+1)
	for ps := start; ps.Before(end); ps = ps.Add(period) {
		pe := ps.Add(period)
		if pe.After(end) {
			pe = end
		}

		avg := m.valueAt(ps.Add(pe.Sub(ps) / 2))
		spread := m.variance / 2
		stats = append(stats, Statistic{
			Avg:           round(avg),
			Min:           round(math.Max(avg-spread, 0)),
			Max:           round(avg + spread),
			Sum:           round(avg * float64(count)),
			Count:         count,
			Period:        int(period / time.Second),
			PeriodStart:   ps.UTC(),
			PeriodEnd:     pe.UTC(),
			Duration:      pe.Sub(ps).Seconds(),
			DurationStart: ps.UTC(),
			DurationEnd:   pe.UTC(),
			Unit:          "%",
		})
	}
	return stats
}

// valueAt must be called with mu held.
func (m *MeterSim) valueAt(at time.Time) float64 {
	value := m.pattern.Apply(m.base, at)
	// An expired spike stays so earlier windows still report it.
	if m.spike != nil {
		if spiked, active := m.spike.Apply(value, at); active {
			value = spiked
		}
	}
	if m.variance > 0 {
		value += (m.rng.Float64()*2 - 1) * m.variance / 2
	}
	if value < 0 {
		value = 0
	}
	return value
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func (m *MeterSim) SetBase(base float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = base
}

func (m *MeterSim) SetVariance(variance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variance = variance
}

func (m *MeterSim) SetPattern(pattern Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pattern = pattern
}

func (m *MeterSim) InjectSpike(target float64, duration, rampUp time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spike = &Spike{
		Target:    target,
		StartTime: time.Now(),
		Duration:  duration,
		RampUp:    rampUp,
	}
}

func (m *MeterSim) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	spike := map[string]interface{}{"active": false}
	if m.spike != nil {
		if remaining := time.Until(m.spike.StartTime.Add(m.spike.Duration)); remaining > 0 {
			spike = map[string]interface{}{
				"active":    true,
				"target":    m.spike.Target,
				"remaining": remaining.Round(time.Second).String(),
			}
		}
	}

	return map[string]interface{}{
		"meter":    m.name,
		"base":     m.base,
		"variance": m.variance,
		"pattern":  m.pattern.Name(),
		"spike":    spike,
	}
}
