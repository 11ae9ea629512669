// Package script provides the scripted-action model for batch generation
// jobs. A script is an ordered sequence of start/interact/end actions, each
// stamped with a millisecond offset used by the service as a spacing hint.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Static validation errors.
var (
	// ErrEmptyScript is returned when a script has no actions.
	ErrEmptyScript = errors.New("script: no actions")
	// ErrMissingStart is returned when the first action is not a start.
	ErrMissingStart = errors.New("script: first action must be start")
	// ErrMultipleStart is returned when a script contains more than one start.
	ErrMultipleStart = errors.New("script: more than one start action")
	// ErrMisplacedEnd is returned when an end action is not the last action.
	ErrMisplacedEnd = errors.New("script: end action must be last")
	// ErrTimestampOrder is returned when timestamps are not ascending.
	ErrTimestampOrder = errors.New("script: timestamps must be ascending")
	// ErrAmbiguousAction is returned when an action does not carry exactly
	// one of start, interact or end.
	ErrAmbiguousAction = errors.New("script: action must carry exactly one variant")
)

// Start begins a stream with an initial prompt and an optional base64 image
// for image-to-video.
type Start struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

// Interact sends a new instruction to the running stream.
type Interact struct {
	Prompt string `json:"prompt"`
}

// End closes the stream.
type End struct{}

// Action is one step of a script. Exactly one of Start, Interact or End is
// set. TimestampMs is a spacing hint, not a scheduling guarantee.
type Action struct {
	TimestampMs int64     `json:"timestamp_ms"`
	Start       *Start    `json:"start,omitempty"`
	Interact    *Interact `json:"interact,omitempty"`
	End         *End      `json:"end,omitempty"`
}

// variantCount reports how many variants are set on the action.
func (a Action) variantCount() int {
	n := 0
	if a.Start != nil {
		n++
	}
	if a.Interact != nil {
		n++
	}
	if a.End != nil {
		n++
	}
	return n
}

// Script is an ordered sequence of actions describing one generation job.
// It serializes as a bare JSON list so saved scripts round-trip losslessly
// with the service's native format.
type Script struct {
	Actions []Action
}

// New creates an empty script. Actions are appended with the Add* methods,
// which return the script for chaining:
//
//	sc := script.New().
//		AddStart("a robot dancing", 0).
//		AddInteract("robot breakdances", 5000).
//		AddEnd(10000)
func New() *Script {
	return &Script{}
}

// AddStart appends a start action with the given prompt.
func (s *Script) AddStart(prompt string, timestampMs int64) *Script {
	s.Actions = append(s.Actions, Action{
		TimestampMs: timestampMs,
		Start:       &Start{Prompt: prompt},
	})
	return s
}

// AddStartImage appends a start action carrying a base64 image for
// image-to-video generation.
func (s *Script) AddStartImage(prompt, image string, timestampMs int64) *Script {
	s.Actions = append(s.Actions, Action{
		TimestampMs: timestampMs,
		Start:       &Start{Prompt: prompt, Image: image},
	})
	return s
}

// AddInteract appends an interaction action.
func (s *Script) AddInteract(prompt string, timestampMs int64) *Script {
	s.Actions = append(s.Actions, Action{
		TimestampMs: timestampMs,
		Interact:    &Interact{Prompt: prompt},
	})
	return s
}

// AddEnd appends an end action.
func (s *Script) AddEnd(timestampMs int64) *Script {
	s.Actions = append(s.Actions, Action{
		TimestampMs: timestampMs,
		End:         &End{},
	})
	return s
}

// Validate checks well-formedness: at least one action, exactly one start
// which comes first, at most one end which comes last, ascending timestamps,
// and exactly one variant per action.
func (s *Script) Validate() error {
	if s == nil || len(s.Actions) == 0 {
		return ErrEmptyScript
	}

	for i, a := range s.Actions {
		if a.variantCount() != 1 {
			return fmt.Errorf("%w (action %d)", ErrAmbiguousAction, i)
		}
		if i == 0 {
			if a.Start == nil {
				return ErrMissingStart
			}
			continue
		}
		if a.Start != nil {
			return ErrMultipleStart
		}
		if a.End != nil && i != len(s.Actions)-1 {
			return fmt.Errorf("%w (action %d)", ErrMisplacedEnd, i)
		}
		if a.TimestampMs < s.Actions[i-1].TimestampMs {
			return fmt.Errorf("%w (action %d: %dms after %dms)",
				ErrTimestampOrder, i, a.TimestampMs, s.Actions[i-1].TimestampMs)
		}
	}

	return nil
}

// MarshalJSON serializes the script as a bare list of actions.
func (s *Script) MarshalJSON() ([]byte, error) {
	if s.Actions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Actions)
}

// UnmarshalJSON parses a bare list of actions.
func (s *Script) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.Actions)
}

// Save writes the script to a JSON file.
func (s *Script) Save(path string) error {
	data, err := json.MarshalIndent(s.Actions, "", "  ")
	if err != nil {
		return fmt.Errorf("script: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("script: write %s: %w", path, err)
	}
	return nil
}

// Load reads a script from a JSON file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	var sc Script
	if err := json.Unmarshal(data, &sc.Actions); err != nil {
		return nil, fmt.Errorf("script: parse %s: %w", path, err)
	}
	return &sc, nil
}
