package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aistudio/internal/metrics"
)

func TestCollectorsAreExposed(t *testing.T) {
	metrics.RecordAttempt("succeeded", 1.5)
	metrics.RecordClassification("out_of_memory")
	metrics.RecordMutation("out_of_memory")
	metrics.RecordImage(true)
	metrics.RecordBatchStart(false)
	metrics.SetBatchRunning(true)
	defer metrics.SetBatchRunning(false)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`aistudio_attempts_total{result="succeeded"}`,
		`aistudio_failure_classifications_total{class="out_of_memory"}`,
		`aistudio_payload_mutations_total{class="out_of_memory"}`,
		`aistudio_images_total{outcome="ok"}`,
		`aistudio_batches_total{result="rejected"}`,
		"aistudio_batch_running 1",
		"aistudio_attempt_duration_seconds_count",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
