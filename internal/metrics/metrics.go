package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the pipeline.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)
	stagesTotal    = make(map[stageKey]int64)
	cacheHitsTotal = make(map[string]int64)
	llmExtracts    = make(map[llmKey]int64)

	schedulerTicks    int64
	monitorsTriggered int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type stageKey struct {
	Stage   string
	Outcome string
}

type llmKey struct {
	Model   string
	Success string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordStage counts one stage execution with its outcome
// (ok, failed, skipped).
func RecordStage(stage, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	stagesTotal[stageKey{Stage: stage, Outcome: outcome}]++
}

// RecordCacheHit counts a hit on one of the two caches
// ("extraction" or "content").
func RecordCacheHit(cacheType string) {
	mu.Lock()
	defer mu.Unlock()
	cacheHitsTotal[cacheType]++
}

// RecordLLMExtract increments LLM extract counters.
func RecordLLMExtract(model string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmExtracts[llmKey{Model: model, Success: s}]++
}

// RecordSchedulerTick counts one scheduler pass and how many due monitors
// it triggered.
func RecordSchedulerTick(triggered int) {
	mu.Lock()
	defer mu.Unlock()
	schedulerTicks++
	monitorsTriggered += int64(triggered)
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP webtap_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE webtap_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "webtap_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP webtap_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE webtap_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP webtap_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE webtap_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "webtap_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "webtap_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP webtap_pipeline_stage_total Total pipeline stage executions by outcome\n")
	b.WriteString("# TYPE webtap_pipeline_stage_total counter\n")

	var stageKeys []stageKey
	for k := range stagesTotal {
		stageKeys = append(stageKeys, k)
	}
	sort.Slice(stageKeys, func(i, j int) bool {
		if stageKeys[i].Stage != stageKeys[j].Stage {
			return stageKeys[i].Stage < stageKeys[j].Stage
		}
		return stageKeys[i].Outcome < stageKeys[j].Outcome
	})

	for _, k := range stageKeys {
		fmt.Fprintf(&b, "webtap_pipeline_stage_total{stage=\"%s\",outcome=\"%s\"} %d\n",
			k.Stage, k.Outcome, stagesTotal[k])
	}

	b.WriteString("# HELP webtap_cache_hits_total Cache hits by cache type\n")
	b.WriteString("# TYPE webtap_cache_hits_total counter\n")

	var cacheTypes []string
	for t := range cacheHitsTotal {
		cacheTypes = append(cacheTypes, t)
	}
	sort.Strings(cacheTypes)
	for _, t := range cacheTypes {
		fmt.Fprintf(&b, "webtap_cache_hits_total{cache=\"%s\"} %d\n", t, cacheHitsTotal[t])
	}

	b.WriteString("# HELP webtap_llm_extract_requests_total Total LLM extract requests\n")
	b.WriteString("# TYPE webtap_llm_extract_requests_total counter\n")

	var llmKeys []llmKey
	for k := range llmExtracts {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Model != llmKeys[j].Model {
			return llmKeys[i].Model < llmKeys[j].Model
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})

	for _, k := range llmKeys {
		fmt.Fprintf(&b, "webtap_llm_extract_requests_total{model=\"%s\",success=\"%s\"} %d\n",
			k.Model, k.Success, llmExtracts[k])
	}

	b.WriteString("# HELP webtap_scheduler_ticks_total Total monitor scheduler passes\n")
	b.WriteString("# TYPE webtap_scheduler_ticks_total counter\n")
	fmt.Fprintf(&b, "webtap_scheduler_ticks_total %d\n", schedulerTicks)

	b.WriteString("# HELP webtap_monitors_triggered_total Total due monitors triggered by the scheduler\n")
	b.WriteString("# TYPE webtap_monitors_triggered_total counter\n")
	fmt.Fprintf(&b, "webtap_monitors_triggered_total %d\n", monitorsTriggered)

	return b.String()
}
