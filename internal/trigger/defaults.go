package trigger

import "context"

// Default feature values used when a chunk cannot be analyzed: a neutral
// 120 BPM medium-energy reading.
const (
	defaultBPM      = 120.0
	defaultEnergy   = 0.5
	defaultCentroid = 4000.0

	// pcmBytesPerSecond assumes 16-bit mono PCM at 22050 Hz, the format
	// real-time clients send on the audio channel.
	pcmBytesPerSecond = 2 * 22050
)

// DefaultFeatures returns the neutral feature set.
func DefaultFeatures() Features {
	return Features{
		BPM:              defaultBPM,
		Energy:           defaultEnergy,
		SpectralCentroid: defaultCentroid,
	}
}

// StaticAnalyzer is a stand-in Analyzer used until a real DSP collaborator
// is wired. It answers every chunk with default features plus a duration
// estimate derived from the chunk length.
type StaticAnalyzer struct{}

// NewStaticAnalyzer creates a StaticAnalyzer.
func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{}
}

// Analyze implements Analyzer.
func (a *StaticAnalyzer) Analyze(_ context.Context, chunk []byte) (Features, error) {
	f := DefaultFeatures()
	f.DurationSec = float64(len(chunk)) / pcmBytesPerSecond
	return f, nil
}

// ThresholdClassifier buckets features with fixed BPM/energy thresholds.
type ThresholdClassifier struct{}

// NewThresholdClassifier creates a ThresholdClassifier.
func NewThresholdClassifier() *ThresholdClassifier {
	return &ThresholdClassifier{}
}

// Classify implements Classifier.
func (c *ThresholdClassifier) Classify(f Features) EnergyLevel {
	switch {
	case f.BPM < 40 && f.Energy < 0.1:
		return EnergySilent
	case f.BPM < 80 && f.Energy < 0.4:
		return EnergyLow
	case f.BPM < 120 && f.Energy < 0.7:
		return EnergyMedium
	default:
		return EnergyHigh
	}
}
