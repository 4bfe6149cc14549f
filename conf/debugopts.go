package conf

// DebugOpts from .core.json
type DebugOpts struct {
	DebugResponses bool `json:"debug_responses"` // pack debug data into JSON responses
}
