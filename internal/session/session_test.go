// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"
	"time"
)

func TestRecordAndSnapshot(t *testing.T) {
	s := New()
	if s.ID() == "" {
		t.Fatal("session has no ID")
	}

	s.Record(true)
	s.Record(true)
	s.Record(false)

	st := s.Snapshot()
	if st.Commands != 3 || st.Successes != 2 || st.Failures != 1 {
		t.Errorf("Snapshot = %+v", st)
	}
	if rate := st.SuccessRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("SuccessRate = %f", rate)
	}
}

func TestSuccessRate_Empty(t *testing.T) {
	st := New().Snapshot()
	if st.SuccessRate() != 0 {
		t.Errorf("empty session SuccessRate = %f", st.SuccessRate())
	}
}

func TestPhaseTransitions(t *testing.T) {
	s := New()
	if s.Phase() != PhaseIdle {
		t.Errorf("initial phase = %v", s.Phase())
	}
	s.SetPhase(PhaseReading)
	if s.Phase() != PhaseReading {
		t.Errorf("phase = %v, want reading", s.Phase())
	}
	s.SetPhase(PhaseExecuting)
	if s.Phase().String() != "executing" {
		t.Errorf("phase string = %q", s.Phase().String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{3*time.Hour + 2*time.Minute + time.Second, "3h2m1s"},
		{0, "0s"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
