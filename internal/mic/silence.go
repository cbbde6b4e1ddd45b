package mic

import "time"

// Voice Guard defaults.
const (
	DefaultSilenceThresholdDB = -40.0
	DefaultSilenceDuration    = 7 * time.Second
)

// SilenceDetector decides when a run of quiet samples has lasted long
// enough. A sample is quiet when it is strictly below ThresholdDB; any loud
// sample resets the run.
//
// It fires at most once per [SilenceDetector.Arm]. The zero value is
// disarmed. It is not safe for concurrent use.
type SilenceDetector struct {
	ThresholdDB float64
	Silence     time.Duration

	armed      bool
	quietSince time.Time
}

// NewSilenceDetector returns an armed detector.
func NewSilenceDetector(thresholdDB float64, silence time.Duration) *SilenceDetector {
	d := &SilenceDetector{ThresholdDB: thresholdDB, Silence: silence}
	d.Arm()
	return d
}

// Arm clears the quiet run and allows the detector to fire again.
func (d *SilenceDetector) Arm() {
	d.armed = true
	d.quietSince = time.Time{}
}

// Armed reports whether the detector can still fire.
func (d *SilenceDetector) Armed() bool { return d.armed }

// Observe feeds one sample taken at now and reports whether silence was
// detected by this sample.
func (d *SilenceDetector) Observe(now time.Time, db float64) bool {
	if !d.armed {
		return false
	}
	if db >= d.ThresholdDB {
		d.quietSince = time.Time{}
		return false
	}
	if d.quietSince.IsZero() {
		d.quietSince = now
	}
	if now.Sub(d.quietSince) >= d.Silence {
		d.armed = false
		return true
	}
	return false
}

// Elapsed returns how long the current quiet run has lasted at now.
func (d *SilenceDetector) Elapsed(now time.Time) time.Duration {
	if d.quietSince.IsZero() {
		return 0
	}
	return now.Sub(d.quietSince)
}
