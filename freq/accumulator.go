package freq

import (
	"math"
	"time"
)

// Accumulator holds the running statistics of one measurement session.
// Count, the averages, the sums of squares and the extrema cover the
// current interval; Total and NoSignal are lifetime counters.
type Accumulator struct {
	Count     int
	PeriodAvg float64 // seconds
	FreqAvg   float64 // Hz
	SumF2     float64
	SumP2     float64
	MinF      float64
	MaxF      float64

	Total        uint64
	NoSignal     uint64
	OldAvg       float64 // last published frequency
	Deadline     time.Time
	Publications int
}

// Add folds one instantaneous frequency sample into the interval.
func (a *Accumulator) Add(f float64) {
	p := 1 / f
	a.PeriodAvg = (a.PeriodAvg*float64(a.Count) + p) / float64(a.Count+1)
	a.FreqAvg = 1 / a.PeriodAvg
	a.Count++
	a.Total++
	a.SumF2 += f * f
	a.SumP2 += p * p
	if a.Count == 1 || f < a.MinF {
		a.MinF = f
	}
	if a.Count == 1 || f > a.MaxF {
		a.MaxF = f
	}
}

// ResetInterval clears the per-interval state.
func (a *Accumulator) ResetInterval() {
	a.Count = 0
	a.PeriodAvg = 0
	a.FreqAvg = 0
	a.SumF2 = 0
	a.SumP2 = 0
	a.MinF = 0
	a.MaxF = 0
}

// Reset clears everything.
func (a *Accumulator) Reset() { *a = Accumulator{} }

// FreqRMS returns the RMS uncertainty of the frequency average in Hz.
func (a *Accumulator) FreqRMS() float64 { return rms(a.SumF2, a.FreqAvg, a.Count) }

// PeriodRMS returns the RMS uncertainty of the period average in seconds.
func (a *Accumulator) PeriodRMS() float64 { return rms(a.SumP2, a.PeriodAvg, a.Count) }

// FreqAccuracy returns the frequency uncertainty in percent of the average.
func (a *Accumulator) FreqAccuracy() float64 { return percent(a.FreqRMS(), a.FreqAvg) }

// PeriodAccuracy returns the period uncertainty in percent of the average.
func (a *Accumulator) PeriodAccuracy() float64 { return percent(a.PeriodRMS(), a.PeriodAvg) }

func rms(sumSq, mean float64, count int) float64 {
	if count == 0 {
		return 0
	}
	n := float64(count)
	variance := max(0, sumSq/n-mean*mean)
	return math.Sqrt(Epsilon+variance) / math.Sqrt(Epsilon+n)
}

func percent(v, mean float64) float64 {
	if mean == 0 {
		return math.Inf(1)
	}
	return 100 * v / mean
}

// MinSamples returns the sample count needed before a result can meet
// target percent accuracy.
func MinSamples(target float64) int {
	if target < TargetDisabled {
		return 10
	}
	n := math.Ceil(10 / target)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return max(10, int(n))
}
