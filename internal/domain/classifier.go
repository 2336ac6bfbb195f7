package domain

// RequiredConfidence is the only confidence level the classifier accepts. Samples reported
// with higher confidence are rejected as well; raising sensitivity means changing this value,
// not widening the comparison.
const RequiredConfidence = ConfidenceMedium

// Classify maps a raw sample onto a canonical activity using the user's enablement flags.
// Priority is running, walking, cycling, then automotive/unknown as other. A tier whose
// activity is disabled falls through to the next one.
func Classify(sample RawSample, cfg EnablementConfig) (ActivityType, bool) {
	if sample.Confidence != RequiredConfidence {
		return "", false
	}

	switch {
	case sample.Running && cfg.Running.Enabled:
		return ActivityRunning, true
	case sample.Walking && cfg.Walking.Enabled:
		return ActivityWalking, true
	case sample.Cycling && cfg.Cycling.Enabled:
		return ActivityCycling, true
	case (sample.Automotive || sample.Unknown) && cfg.Other.Enabled:
		return ActivityOther, true
	}
	return "", false
}
