package domain

// AttemptOutcome is the terminal result of one attempt-loop invocation.
type AttemptOutcome struct {
	OK           bool   `json:"ok"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Attempts     int    `json:"attempts"`
}

// Succeeded builds a successful outcome pointing at the produced artifact.
func Succeeded(path string) AttemptOutcome {
	return AttemptOutcome{OK: true, ArtifactPath: path}
}

// Failed builds a failed outcome carrying the last error message.
func Failed(msg string) AttemptOutcome {
	return AttemptOutcome{ErrorMessage: msg}
}

// CountSucceeded returns how many outcomes report success.
func CountSucceeded(outcomes []AttemptOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK {
			n++
		}
	}
	return n
}
