// Package trigger defines the boundary to the audio/speech analysis
// collaborators and the pipeline that chains them: analyze a chunk, classify
// its energy, map it to a generation prompt. The analysis itself (DSP, STT,
// NLP) lives behind the interfaces; the core only calls them in order and
// contains their failures per trigger.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
)

// Features are the audio features extracted from one chunk.
type Features struct {
	BPM              float64 `json:"bpm"`
	Energy           float64 `json:"energy"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	DurationSec      float64 `json:"duration"`
}

// EnergyLevel buckets a chunk's intensity.
type EnergyLevel string

// Energy levels, from quiet to loud.
const (
	EnergySilent EnergyLevel = "silent"
	EnergyLow    EnergyLevel = "low_energy"
	EnergyMedium EnergyLevel = "medium_energy"
	EnergyHigh   EnergyLevel = "high_energy"
)

// Analyzer extracts features from a raw audio chunk. Chunks shorter than
// half a second of audio may be answered with default features.
type Analyzer interface {
	Analyze(ctx context.Context, chunk []byte) (Features, error)
}

// Classifier buckets features into an energy level.
type Classifier interface {
	Classify(f Features) EnergyLevel
}

// PromptMapper turns features into a generation prompt.
type PromptMapper interface {
	MapToPrompt(f Features, level EnergyLevel) (string, error)
}

// Outcome is the result of running one trigger through the pipeline.
type Outcome struct {
	Features Features
	Level    EnergyLevel
	Prompt   string
}

// Pipeline chains analyzer, classifier and mapper. A failure in any stage is
// a recoverable per-trigger failure: the error is returned to the caller and
// never escalates past the trigger that caused it.
type Pipeline struct {
	analyzer   Analyzer
	classifier Classifier
	mapper     PromptMapper
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(a Analyzer, c Classifier, m PromptMapper, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{analyzer: a, classifier: c, mapper: m, logger: logger}
}

// PromptFromAudio runs one audio chunk through analyze, classify and map.
func (p *Pipeline) PromptFromAudio(ctx context.Context, chunk []byte) (Outcome, error) {
	features, err := p.analyzer.Analyze(ctx, chunk)
	if err != nil {
		return Outcome{}, fmt.Errorf("trigger: analyze: %w", err)
	}

	level := p.classifier.Classify(features)

	prompt, err := p.mapper.MapToPrompt(features, level)
	if err != nil {
		return Outcome{}, fmt.Errorf("trigger: map prompt: %w", err)
	}

	p.logger.Info("trigger mapped",
		slog.String("energy_level", string(level)),
		slog.Float64("bpm", features.BPM),
		slog.Float64("energy", features.Energy),
	)
	return Outcome{Features: features, Level: level, Prompt: prompt}, nil
}
