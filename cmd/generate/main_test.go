package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"aistudio/internal/domain"
)

func TestParsePlanFromFlags(t *testing.T) {
	pf, err := parsePlan([]string{"-prompt", "a tin robot", "-filename", "robot.webp", "-n", "3", "-width", "640", "-max-attempts", "0"}, 3, io.Discard)
	if err != nil {
		t.Fatalf("parsePlan returned error: %v", err)
	}
	plan, err := pf.BatchPlan()
	if err != nil {
		t.Fatalf("BatchPlan returned error: %v", err)
	}
	if plan.TotalImages != 3 {
		t.Fatalf("TotalImages = %d, want 3", plan.TotalImages)
	}
	if plan.Base.Width != 640 || plan.Base.Height != domain.DefaultHeight {
		t.Fatalf("size = %dx%d", plan.Base.Width, plan.Base.Height)
	}
	if !plan.MaxAttempts.IsUnbounded() {
		t.Fatalf("expected unbounded budget, got %v", plan.MaxAttempts)
	}
}

func TestParsePlanFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	body := "request:\n  prompt: from file\n  steps: 40\ntotal_images: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	pf, err := parsePlan([]string{"-plan", path, "-steps", "12"}, 2, io.Discard)
	if err != nil {
		t.Fatalf("parsePlan returned error: %v", err)
	}
	if pf.Request.Prompt != "from file" || pf.Request.Steps != 12 || pf.TotalImages == nil || *pf.TotalImages != 5 {
		t.Fatalf("unexpected plan: %+v", pf)
	}
	if pf.MaxAttempts == nil || *pf.MaxAttempts != 2 {
		t.Fatalf("MaxAttempts should default to 2, got %v", pf.MaxAttempts)
	}
}

func TestParsePlanRequiresPrompt(t *testing.T) {
	pf, err := parsePlan(nil, 3, io.Discard)
	if err != nil {
		t.Fatalf("parsePlan returned error: %v", err)
	}
	if _, err := pf.BatchPlan(); err == nil {
		t.Fatal("expected missing prompt to be rejected")
	}
}
