package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatal("generated name is empty")
	}
	ctx := context.Background()

	rec.Observe(ctx, "create_batch", true, 20*time.Millisecond)
	rec.Observe(ctx, "create_batch", true, 30*time.Millisecond)
	rec.Observe(ctx, "create_batch", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["create_batch"]; got != 55 {
		t.Fatalf("durations = %v", got)
	}
	if snap.Results["create_batch"]["success"] != 2 || snap.Results["create_batch"]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatal("empty operation recorded")
	}

	// Snapshots are copies.
	snap.DurationsMS["create_batch"] = 0
	if rec.Snapshot().DurationsMS["create_batch"] != 55 {
		t.Fatal("snapshot shares internal state")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	rec.Observe(ctx, "record_sale", true, 12*time.Millisecond)
	rec.Observe(ctx, "record_sale", false, 3*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
		if mf.GetName() == "agrichain_operations_total" {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			if total != 2 {
				t.Fatalf("operations total = %v", total)
			}
		}
	}
	if !byName["agrichain_operations_total"] || !byName["agrichain_operation_duration_seconds"] {
		t.Fatalf("families = %v", byName)
	}

	// Registering twice against the same registry must fail.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "sync_orders")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "sync_orders")
	span.End(errors.New("boom"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("statuses = %q, %q", entries[0].Status, entries[1].Status)
	}
	if entries[1].Error != "boom" {
		t.Fatalf("error = %q", entries[1].Error)
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("encoded lines = %d", got)
	}
}

func TestServiceInstrumentsOperations(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithMetricsRecorder(rec), WithTracer(tracer))
	ctx := context.Background()

	if _, _, err := svc.CreateBatch(ctx, Batch{FarmerID: "F1", Quantity: 10}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.AddStock(ctx, "missing", "F1", 1, ""); err == nil {
		t.Fatal("expected failure for unknown item")
	}

	snap := rec.Snapshot()
	if snap.Results["create_batch"]["success"] != 1 {
		t.Fatalf("create_batch metrics = %v", snap.Results)
	}
	if snap.Results["add_stock"]["error"] != 1 {
		t.Fatalf("add_stock metrics = %v", snap.Results)
	}

	var ops []string
	for _, e := range tracer.Entries() {
		ops = append(ops, e.Operation+":"+e.Status)
	}
	if len(ops) != 2 || ops[0] != "create_batch:success" || ops[1] != "add_stock:error" {
		t.Fatalf("spans = %v", ops)
	}
}
