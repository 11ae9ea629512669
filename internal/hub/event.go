// Package hub fans events out from the single publishing path to a dynamic
// set of consumers, isolating each consumer's failures from the rest.
package hub

// EventType identifies the kind of event on the real-time channel.
type EventType string

// Event types delivered to connected clients, in the order a trigger
// normally produces them.
const (
	EventConnected          EventType = "connected"
	EventAnalysis           EventType = "analysis"
	EventPrompt             EventType = "prompt"
	EventGenerationStarted  EventType = "generation_started"
	EventGenerationComplete EventType = "generation_complete"
	EventFrame              EventType = "frame"
	EventError              EventType = "error"
	EventPong               EventType = "pong"
)

// Event is one typed message on the real-time channel. Only the fields
// relevant to the Type are set; the zero fields are omitted on the wire.
type Event struct {
	Type EventType `json:"type"`
	// Info carries service/session details for connected events.
	Info any `json:"info,omitempty"`
	// Features carries the audio analysis for analysis events.
	Features any `json:"features,omitempty"`
	// Prompt and EnergyLevel are set on prompt events.
	Prompt      string `json:"prompt,omitempty"`
	EnergyLevel string `json:"energy_level,omitempty"`
	// JobID is set on generation_started events.
	JobID string `json:"job_id,omitempty"`
	// Status and Results are set on generation_complete events.
	Status  string `json:"status,omitempty"`
	Results any    `json:"streams,omitempty"`
	// Data carries the base64-encoded JPEG for frame events.
	Data string `json:"data,omitempty"`
	// Message carries the description for error events.
	Message string `json:"message,omitempty"`
}
