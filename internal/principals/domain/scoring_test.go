package domain

import (
	"math"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestScoreWeightedComponents(t *testing.T) {
	agg := RawAggregate{
		Interactions:  InteractionStats{InteractionsLast30Days: 4},
		Opportunities: OpportunityStats{ActiveOpportunities: 1},
		Products:      ProductStats{ActiveProductCount: 2},
	}

	got := Score(agg, 80)
	if math.Abs(got-40.4) > 1e-9 {
		t.Fatalf("expected engagement score 40.4, got %v", got)
	}

	b := Breakdown(agg, 80)
	if math.Abs(b.Lead-32) > 1e-9 || math.Abs(b.Interaction-6) > 1e-9 ||
		math.Abs(b.Opportunity-2) > 1e-9 || math.Abs(b.Product-0.4) > 1e-9 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestScoreOnlyLeadComponentWithoutActivity(t *testing.T) {
	for _, lead := range []float64{0, 12.5, 55, 100} {
		got := Score(RawAggregate{}, lead)
		want := math.Round(lead*0.4*100) / 100
		if got != want {
			t.Fatalf("lead %v: expected %v, got %v", lead, want, got)
		}
	}
}

func TestScoreClampsExtremeInputs(t *testing.T) {
	cases := []struct {
		name string
		agg  RawAggregate
		lead float64
	}{
		{"huge activity", RawAggregate{
			Interactions:  InteractionStats{InteractionsLast30Days: 1000},
			Opportunities: OpportunityStats{ActiveOpportunities: 1000},
			Products:      ProductStats{ActiveProductCount: 1000},
		}, 100},
		{"lead above range", RawAggregate{}, 10_000},
		{"negative lead", RawAggregate{}, -50},
		{"negative counters", RawAggregate{
			Interactions:  InteractionStats{InteractionsLast30Days: -5},
			Opportunities: OpportunityStats{ActiveOpportunities: -5},
			Products:      ProductStats{ActiveProductCount: -5},
		}, 20},
		{"nan lead", RawAggregate{}, math.NaN()},
		{"infinite lead", RawAggregate{}, math.Inf(1)},
	}

	for _, tc := range cases {
		got := Score(tc.agg, tc.lead)
		if math.IsNaN(got) || got < 0 || got > 100 {
			t.Fatalf("%s: score %v outside [0,100]", tc.name, got)
		}
	}

	maxed := Score(cases[0].agg, 100)
	if maxed != 54 {
		t.Fatalf("expected capped maximum 54, got %v", maxed)
	}
}

func TestClassifyActivityBuckets(t *testing.T) {
	at := func(d time.Duration) *time.Time {
		ts := testNow.Add(-d)
		return &ts
	}

	cases := []struct {
		last *time.Time
		want ActivityStatus
	}{
		{nil, ActivityNone},
		{at(0), ActivityActive},
		{at(-2 * time.Hour), ActivityActive},
		{at(7 * day), ActivityActive},
		{at(7*day + time.Second), ActivityModerate},
		{at(30 * day), ActivityModerate},
		{at(30*day + time.Second), ActivityStale},
		{at(400 * day), ActivityStale},
	}

	for i, tc := range cases {
		if got := ClassifyActivity(tc.last, testNow); got != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
}

func TestClassifyActivityNeverBecomesMoreRecentAsTimePasses(t *testing.T) {
	for offset := 0; offset <= 60; offset++ {
		last := testNow.Add(-time.Duration(offset) * day).Add(-3 * time.Hour)
		for step := 0; step < 45; step++ {
			earlier := testNow.Add(time.Duration(step) * day)
			later := earlier.Add(day)
			before := ClassifyActivity(&last, earlier)
			after := ClassifyActivity(&last, later)
			if after.Rank() > before.Rank() {
				t.Fatalf("last=%s: status moved from %s to %s between %s and %s",
					last, before, after, earlier, later)
			}
		}
	}
}

func TestEvaluateUsesLastInteractionDate(t *testing.T) {
	last := testNow.Add(-10 * day)
	agg := RawAggregate{Interactions: InteractionStats{LastInteractionDate: &last}}

	score, status := Evaluate(agg, 50, testNow)
	if score != 20 {
		t.Fatalf("expected score 20, got %v", score)
	}
	if status != ActivityModerate {
		t.Fatalf("expected MODERATE, got %s", status)
	}
}
