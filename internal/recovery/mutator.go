package recovery

import (
	"fmt"
	"strings"

	"aistudio/internal/domain"
)

// Mutate derives the request for the next attempt. The result never asks for
// more resolution or more steps than the input, so repeated application
// converges on the floors. NonRetryable requests are returned unchanged.
func Mutate(req domain.GenerationRequest, class Class) domain.GenerationRequest {
	next := req
	switch class {
	case NonRetryable:
		return next
	case OutOfMemory:
		next.Device = domain.DeviceCPU
		next.Precision = domain.PrecisionFloat32
	}
	next.Width = halve(req.Width, domain.MinDimension)
	next.Height = halve(req.Height, domain.MinDimension)
	next.Steps = halve(req.Steps, domain.MinSteps)
	return next
}

// halve returns v/2 clamped to floor, but never more than v itself.
func halve(v, floor int) int {
	h := max(v/2, floor)
	if h > v {
		return v
	}
	return h
}

// DescribeChange summarizes what Mutate changed, for the log sink.
func DescribeChange(before, after domain.GenerationRequest) string {
	var parts []string
	if before.Width != after.Width || before.Height != after.Height {
		parts = append(parts, fmt.Sprintf("size %dx%d -> %dx%d", before.Width, before.Height, after.Width, after.Height))
	}
	if before.Steps != after.Steps {
		parts = append(parts, fmt.Sprintf("steps %d -> %d", before.Steps, after.Steps))
	}
	if before.Device != after.Device {
		parts = append(parts, fmt.Sprintf("device %s -> %s", before.Device, after.Device))
	}
	if before.Precision != after.Precision {
		parts = append(parts, fmt.Sprintf("precision %s -> %s", before.Precision, after.Precision))
	}
	if len(parts) == 0 {
		return "unchanged (already at floor)"
	}
	return strings.Join(parts, ", ")
}
