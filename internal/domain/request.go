package domain

import "strings"

const (
	// DefaultFilename is used when a request carries no output name.
	DefaultFilename = "output.png"
	// DefaultWidth and DefaultHeight are the synthesis resolution when unset.
	DefaultWidth  = 1024
	DefaultHeight = 1024
	// DefaultSteps is the number of inference steps when unset.
	DefaultSteps = 30
	// DefaultGuidance is the classifier-free guidance scale when unset.
	DefaultGuidance = 7.5
	// DefaultDevice lets the server pick cuda or cpu.
	DefaultDevice = "auto"
	// DefaultPrecision lets the server pick float16 or float32.
	DefaultPrecision = "auto"
	// DefaultScheduler mirrors the server's sampler default.
	DefaultScheduler = "DDIM"

	// MinDimension is the floor applied to width and height.
	MinDimension = 256
	// MinSteps is the floor applied to the step count.
	MinSteps = 1

	DeviceCPU        = "cpu"
	PrecisionFloat32 = "float32"
)

// GenerationRequest is the payload sent to the remote synthesis job. It is a
// value type: every degradation produces a new copy, never an in-place edit.
type GenerationRequest struct {
	Prompt    string  `json:"prompt" yaml:"prompt"`
	Model     string  `json:"model" yaml:"model"`
	Filename  string  `json:"filename" yaml:"filename"`
	Width     int     `json:"width" yaml:"width"`
	Height    int     `json:"height" yaml:"height"`
	Steps     int     `json:"steps" yaml:"steps"`
	Guidance  float64 `json:"guidance" yaml:"guidance"`
	Device    string  `json:"device" yaml:"device"`
	Precision string  `json:"precision" yaml:"precision"`
	Scheduler string  `json:"scheduler" yaml:"scheduler"`
}

// Normalize returns a copy with defaults filled in and floors applied.
func (r GenerationRequest) Normalize() GenerationRequest {
	out := r
	out.Prompt = strings.TrimSpace(out.Prompt)
	out.Model = strings.TrimSpace(out.Model)
	out.Filename = strings.TrimSpace(out.Filename)
	if out.Filename == "" {
		out.Filename = DefaultFilename
	}
	if out.Width == 0 {
		out.Width = DefaultWidth
	}
	if out.Height == 0 {
		out.Height = DefaultHeight
	}
	if out.Steps == 0 {
		out.Steps = DefaultSteps
	}
	if out.Guidance <= 0 {
		out.Guidance = DefaultGuidance
	}
	out.Width = max(out.Width, MinDimension)
	out.Height = max(out.Height, MinDimension)
	out.Steps = max(out.Steps, MinSteps)
	if out.Device = strings.ToLower(strings.TrimSpace(out.Device)); out.Device == "" {
		out.Device = DefaultDevice
	}
	if out.Precision = strings.ToLower(strings.TrimSpace(out.Precision)); out.Precision == "" {
		out.Precision = DefaultPrecision
	}
	if out.Scheduler = strings.TrimSpace(out.Scheduler); out.Scheduler == "" {
		out.Scheduler = DefaultScheduler
	}
	return out
}

// WithFilename returns a copy of the request targeting another output name.
func (r GenerationRequest) WithFilename(name string) GenerationRequest {
	r.Filename = name
	return r
}
