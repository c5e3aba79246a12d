package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("GET", "/api/status/job_x", 200, 42)

	out := Export()
	if !strings.Contains(out, "webtap_http_requests_total{method=\"GET\",path=\"/api/status/job_x\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric in export, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_http_request_duration_ms_sum") || !strings.Contains(out, "webtap_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordStageMetrics(t *testing.T) {
	RecordStage("fetching", "ok")
	RecordStage("storing", "failed")
	RecordStage("storing", "skipped")

	out := Export()
	if !strings.Contains(out, "webtap_pipeline_stage_total{stage=\"fetching\",outcome=\"ok\"}") {
		t.Fatalf("expected fetching ok metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_pipeline_stage_total{stage=\"storing\",outcome=\"failed\"}") {
		t.Fatalf("expected storing failed metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_pipeline_stage_total{stage=\"storing\",outcome=\"skipped\"}") {
		t.Fatalf("expected storing skipped metric, got:\n%s", out)
	}
}

func TestRecordCacheAndLLMMetrics(t *testing.T) {
	RecordCacheHit("extraction")
	RecordCacheHit("content")
	RecordLLMExtract("gpt-4o-mini", true)
	RecordLLMExtract("gpt-4o-mini", false)

	out := Export()
	if !strings.Contains(out, "webtap_cache_hits_total{cache=\"extraction\"}") {
		t.Fatalf("expected extraction cache metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_cache_hits_total{cache=\"content\"}") {
		t.Fatalf("expected content cache metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_llm_extract_requests_total{model=\"gpt-4o-mini\",success=\"true\"}") {
		t.Fatalf("expected llm success metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_llm_extract_requests_total{model=\"gpt-4o-mini\",success=\"false\"}") {
		t.Fatalf("expected llm failure metric, got:\n%s", out)
	}
}

func TestRecordSchedulerTick(t *testing.T) {
	RecordSchedulerTick(2)

	out := Export()
	if !strings.Contains(out, "webtap_scheduler_ticks_total") {
		t.Fatalf("expected scheduler tick metric, got:\n%s", out)
	}
	if !strings.Contains(out, "webtap_monitors_triggered_total") {
		t.Fatalf("expected monitors triggered metric, got:\n%s", out)
	}
}
