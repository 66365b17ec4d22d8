package model

import (
	"testing"
	"time"
)

func TestJobPatchSkipsEmptyValues(t *testing.T) {
	p := JobPatch{}
	p.SetString(FieldResultURL, "")
	p.SetTime(FieldCompletedAt, nil)
	p.SetFloat(FieldResultDurationSeconds, nil)
	if len(p) != 0 {
		t.Fatalf("expected empty patch, got %v", p)
	}

	d := 12.5
	p.SetFloat(FieldResultDurationSeconds, &d)
	if p[FieldResultDurationSeconds] != "12.5" {
		t.Errorf("unexpected float encoding %q", p[FieldResultDurationSeconds])
	}
}

func TestJobPatchArgsSorted(t *testing.T) {
	p := JobPatch{"b": "2", "a": "1"}
	args := p.Args()
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestJobFromHash(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := map[string]string{
		FieldID:                    "job-1",
		FieldOwner:                 "u1",
		FieldStatus:                "Completed",
		FieldResultURL:             "https://cdn.example.com/out.mp4",
		FieldResultDurationSeconds: "31.2",
		FieldCreatedAt:             FormatTime(created),
		FieldUpdatedAt:             FormatTime(created),
		FieldSecondaryStatus:       "processing",
	}

	job, err := JobFromHash(h)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !job.Status.IsCompleted() {
		t.Errorf("expected completed, got %s", job.Status)
	}
	if job.ResultDurationSeconds == nil || *job.ResultDurationSeconds != 31.2 {
		t.Errorf("unexpected duration %v", job.ResultDurationSeconds)
	}
	if !job.CreatedAt.Equal(created) {
		t.Errorf("unexpected createdAt %v", job.CreatedAt)
	}
	if job.SecondaryStatus == nil || job.SecondaryStatus.Kind != StatusProcessing {
		t.Errorf("unexpected secondary status %v", job.SecondaryStatus)
	}
	if job.CompletedAt != nil {
		t.Errorf("expected no completedAt, got %v", job.CompletedAt)
	}
}

func TestJobFromHashRejectsBadTime(t *testing.T) {
	_, err := JobFromHash(map[string]string{FieldID: "job-1", FieldCreatedAt: "yesterday"})
	if err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}
