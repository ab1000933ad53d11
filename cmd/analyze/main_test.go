package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/stretchr/testify/assert"

	"ontology/internal/pipeline"
)

func TestRender(t *testing.T) {
	metric := "api_calls (importance 0.61, high confidence)"
	s := pipeline.OntologySummary{
		CustomerCount:      40,
		TotalMRR:           12345.5,
		SegmentCount:       3,
		KeyInsights:        []string{"3 segments identified (silhouette 0.62)"},
		HealthDistribution: pipeline.HealthDistribution{Healthy: 30, AtRisk: 8, Critical: 2},
		PrimaryValueMetric: &metric,
		TopPatterns:        []string{"Usage ceiling upgrade path"},
	}
	var buf bytes.Buffer
	id := uuid.New()
	render(&buf, id, s)

	out := buf.String()
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "customers: 40  mrr: 12345.50  segments: 3")
	assert.Contains(t, out, "30 healthy, 8 at risk, 2 critical")
	assert.Contains(t, out, metric)
	assert.Contains(t, out, "  - Usage ceiling upgrade path")
}

func TestProgressSink(t *testing.T) {
	bar := progressbar.NewOptions(pipeline.TotalSteps, progressbar.OptionSetWriter(io.Discard))
	sink := progressSink(bar)
	for i, step := range pipeline.Steps[:3] {
		sink(pipeline.Progress{Step: step, CompletedSteps: i + 1, TotalSteps: pipeline.TotalSteps})
	}
	assert.Equal(t, int64(3), bar.State().CurrentNum)
}
