package trigger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoreConfig is the project's visual identity: per-energy-level scene
// mappings plus character styling, loaded from a JSON file curated by the
// creative side.
type LoreConfig struct {
	Project   string                  `json:"project"`
	Themes    []string                `json:"themes"`
	Mappings  map[string]SceneMapping `json:"audio_mappings"`
	Character CharacterDesign         `json:"character_design"`
}

// SceneMapping describes the visual treatment for one energy level.
type SceneMapping struct {
	SceneDescription string   `json:"scene_description"`
	CameraMovement   string   `json:"camera_movement"`
	LightingStyle    string   `json:"lighting_style"`
	LightingColors   []string `json:"lighting_colors"`
	Mood             string   `json:"mood"`
	Effects          []string `json:"effects"`
}

// CharacterDesign describes the recurring subject of every scene.
type CharacterDesign struct {
	Subject    string `json:"subject"`
	Aesthetics string `json:"aesthetics"`
}

// LoadLoreConfig reads a lore configuration from a JSON file.
func LoadLoreConfig(path string) (*LoreConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("trigger: read lore config %s: %w", path, err)
	}
	var cfg LoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("trigger: parse lore config %s: %w", path, err)
	}
	return &cfg, nil
}

// DefaultLoreConfig returns a minimal built-in lore used when no config
// file is provided.
func DefaultLoreConfig() *LoreConfig {
	return &LoreConfig{
		Project: "pulseframe",
		Themes:  []string{"neon", "motion"},
		Mappings: map[string]SceneMapping{
			string(EnergySilent): {
				SceneDescription: "drifting through still fog",
				CameraMovement:   "static",
				LightingStyle:    "dim ambient",
				LightingColors:   []string{"#1a1a2e"},
				Mood:             "calm",
			},
			string(EnergyLow): {
				SceneDescription: "walking a rain-slick street",
				CameraMovement:   "slow dolly",
				LightingStyle:    "soft neon",
				LightingColors:   []string{"#00ff9f"},
				Mood:             "contemplative",
			},
			string(EnergyMedium): {
				SceneDescription: "moving through a crowded arcade",
				CameraMovement:   "smooth tracking",
				LightingStyle:    "pulsing neon",
				LightingColors:   []string{"#00ff9f", "#ff0080"},
				Mood:             "energetic",
			},
			string(EnergyHigh): {
				SceneDescription: "racing across rooftops under storm light",
				CameraMovement:   "fast handheld",
				LightingStyle:    "strobing",
				LightingColors:   []string{"#ff0080", "#ffee00"},
				Mood:             "frenetic",
				Effects:          []string{"motion blur", "lens flare"},
			},
		},
		Character: CharacterDesign{
			Subject:    "figure",
			Aesthetics: "chrome-accented",
		},
	}
}

// LoreMapper builds prompts from the lore configuration.
type LoreMapper struct {
	cfg *LoreConfig
}

// NewLoreMapper creates a LoreMapper. A nil config falls back to the
// built-in lore.
func NewLoreMapper(cfg *LoreConfig) *LoreMapper {
	if cfg == nil {
		cfg = DefaultLoreConfig()
	}
	return &LoreMapper{cfg: cfg}
}

// MapToPrompt implements PromptMapper.
func (m *LoreMapper) MapToPrompt(_ Features, level EnergyLevel) (string, error) {
	mapping, ok := m.cfg.Mappings[string(level)]
	if !ok {
		return "", fmt.Errorf("trigger: no lore mapping for energy level %q", level)
	}

	scene := mapping.SceneDescription
	if scene == "" {
		scene = "in an abstract landscape"
	}

	prompt := fmt.Sprintf(
		"Cinematic shot of %s %s %s, %s camera movement, %s lighting with %s palette, %s atmosphere",
		m.cfg.Character.Aesthetics,
		m.cfg.Character.Subject,
		strings.ToLower(scene),
		mapping.CameraMovement,
		mapping.LightingStyle,
		strings.Join(mapping.LightingColors, "/"),
		mapping.Mood,
	)
	if len(mapping.Effects) > 0 {
		prompt += ", " + strings.Join(mapping.Effects, ", ")
	}
	return prompt, nil
}
