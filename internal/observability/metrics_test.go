package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestSimCollectorRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.RecordRequest("HIGH", "CREATED")
	collector.RecordRequest("HIGH", "COMPLETED")
	collector.RecordRequest("LOW", "FAILED")
	collector.ObserveCompletion("HIGH", 0.12)

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("HIGH", "COMPLETED")); got != 1 {
		t.Fatalf("ntn_requests_total{HIGH,COMPLETED} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("LOW", "FAILED")); got != 1 {
		t.Fatalf("ntn_requests_total{LOW,FAILED} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "ntn_request_completion_seconds", map[string]string{"priority": "HIGH"}); count != 1 {
		t.Fatalf("ntn_request_completion_seconds sample_count = %d, want 1", count)
	}
}

func TestSimCollectorRegistersTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.SetQoS(42)
	if got := testutil.ToFloat64(second.QoSSatisfaction); got != 42 {
		t.Fatalf("collectors should share registered metrics, got %v", got)
	}
}

func TestMetricsHandlerExposesSimGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveTick(1.5, time.Millisecond, 3, 2, 1234)
	collector.SetNodeEnergy("HAPS-0", "HAPS", 567)
	collector.SetQoS(90)
	collector.RecordRequest("MEDIUM", "CREATED")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"ntn_requests_total",
		"ntn_tick_duration_seconds",
		"ntn_node_energy_joules",
		"ntn_energy_total_joules 1234",
		"ntn_active_links 3",
		"ntn_nodes_powered_on 2",
		"ntn_qos_satisfaction_percent 90",
		"ntn_simulated_time_seconds 1.5",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveTick(0, 0, 0, 0, 0)
	c.RecordRequest("LOW", "FAILED")
	c.ObserveCompletion("LOW", 1)
	c.SetNodeEnergy("n", "v", 1)
	c.SetQoS(1)

	var tc *TrainerCollector
	tc.ObserveEpisode(time.Second, 0.1, 1, 2, 3, 4)
}

func TestTrainerCollectorObserveEpisode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTrainerCollector(reg)
	if err != nil {
		t.Fatalf("NewTrainerCollector: %v", err)
	}
	collector.ObserveEpisode(20*time.Millisecond, 0.5, 0.8, 1500, 95, 12)
	collector.ObserveEpisode(20*time.Millisecond, 0.4, -10, 1700, 80, 15)

	if got := testutil.ToFloat64(collector.EpisodesTotal); got != 2 {
		t.Fatalf("qtrain_episodes_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.EpisodeReward); got != -10 {
		t.Fatalf("qtrain_episode_reward = %v, want -10", got)
	}
	if got := testutil.ToFloat64(collector.QTableStates); got != 15 {
		t.Fatalf("qtrain_qtable_states = %v, want 15", got)
	}
	if collector.Gatherer() == nil {
		t.Fatalf("expected a gatherer")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
