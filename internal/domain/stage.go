package domain

// ScriptRequest is the input of the script stage.
type ScriptRequest struct {
	Topic          string
	DurationBucket string
	Style          string
	Locale         string
}

// VoiceRequest is the input of the voice stage.
type VoiceRequest struct {
	VideoID string
	Script  string
	Locale  string
}

// AssemblyRequest is the input of one assembly attempt.
type AssemblyRequest struct {
	VideoID     string
	UserID      string
	Attempt     int
	Script      string
	AudioURL    string
	AspectRatio string
	Duration    int
}

// AssemblyState is the provider-side progress of a render.
type AssemblyState string

const (
	AssemblyQueued    AssemblyState = "queued"
	AssemblyRendering AssemblyState = "rendering"
	AssemblySucceeded AssemblyState = "succeeded"
	AssemblyFailed    AssemblyState = "failed"
)

// Terminal reports whether the render finished either way.
func (s AssemblyState) Terminal() bool {
	return s == AssemblySucceeded || s == AssemblyFailed
}

// AssemblyStatus is one observation of a render.
type AssemblyStatus struct {
	State    AssemblyState
	VideoURL string
	Reason   string
}
