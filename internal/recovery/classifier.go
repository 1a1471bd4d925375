// Package recovery decides how the attempt loop reacts to a failed attempt:
// which failures are worth retrying, and how to shrink the next request.
package recovery

import (
	"strings"

	"golang.org/x/text/cases"

	"aistudio/internal/domain"
)

// Class is the recovery strategy chosen for a failure.
type Class int

const (
	// Generic failures are retried with a smaller request.
	Generic Class = iota
	// OutOfMemory failures are retried on the CPU at float32 with a smaller request.
	OutOfMemory
	// NonRetryable failures stop the loop: retrying cannot fix a missing asset
	// or a broken pipeline configuration.
	NonRetryable
)

func (c Class) String() string {
	switch c {
	case OutOfMemory:
		return "out_of_memory"
	case NonRetryable:
		return "non_retryable"
	default:
		return "generic"
	}
}

// Retryable reports whether the loop may spend another attempt.
func (c Class) Retryable() bool {
	return c != NonRetryable
}

var nonRetryableHints = []string{
	"failed to load pipeline",
	"file not found",
	"no such file",
}

const cudaOutOfMemoryHint = "cuda out of memory"

var outOfMemoryHints = []string{
	"out of memory",
	"cuda out of memory",
	"oom",
}

// Classify maps a failure onto a recovery class. A structured kind from the
// job boundary wins; free-text matching is only a fallback for servers that
// do not send one.
func Classify(f domain.Failure) Class {
	switch f.Kind {
	case domain.FailureKindNonRetryable:
		return NonRetryable
	case domain.FailureKindOutOfMemory:
		return OutOfMemory
	case domain.FailureKindGeneric:
		return Generic
	}
	text := f.Text
	if f.Trace != "" {
		text += "\n" + f.Trace
	}
	return ClassifyText(text)
}

// ClassifyText applies the substring heuristics to an error message.
// Matching is case-insensitive; an empty message is Generic.
func ClassifyText(msg string) Class {
	if strings.TrimSpace(msg) == "" {
		return Generic
	}
	folded := cases.Fold().String(msg)
	// A CUDA allocation failure is always OutOfMemory, even when the
	// traceback also mentions a missing file.
	if strings.Contains(folded, cudaOutOfMemoryHint) {
		return OutOfMemory
	}
	if containsAny(folded, nonRetryableHints) {
		return NonRetryable
	}
	if containsAny(folded, outOfMemoryHints) {
		return OutOfMemory
	}
	return Generic
}

func containsAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}
