package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/jobs"
)

func TestStore_GetJobNotFound(t *testing.T) {
	_, err := NewStore().GetJob(context.Background(), "missing")
	if !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_SaveRequiresID(t *testing.T) {
	if err := NewStore().SaveJob(context.Background(), &jobs.Job{}); err == nil {
		t.Error("SaveJob() without id should fail")
	}
}

func TestStore_SaveStoresCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := &jobs.Job{JobID: "a", Status: jobs.JobStatusPending}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.Status = jobs.JobStatusRunning

	got, err := s.GetJob(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, j := range []jobs.Job{
		{JobID: "1", Type: jobs.JobTypeRebuildIndex, Status: jobs.JobStatusCompleted},
		{JobID: "2", Type: jobs.JobTypeSyncNotion, Status: jobs.JobStatusFailed},
		{JobID: "3", Type: jobs.JobTypeRebuildIndex, Status: jobs.JobStatusFailed},
		{JobID: "4", Type: jobs.JobTypeRebuildIndex, Status: jobs.JobStatusPending},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.SaveJob(ctx, &j); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"4", "3", "2", "1"}},
		{name: "by type", filter: jobs.JobFilter{Type: jobs.JobTypeRebuildIndex}, want: []string{"4", "3", "1"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, want: []string{"3", "2"}},
		{name: "limit and offset", filter: jobs.JobFilter{Limit: 2, Offset: 1}, want: []string{"3", "2"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 10}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			ids := make([]string, len(got))
			for i, j := range got {
				ids[i] = j.JobID
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ListJobs() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ListJobs() = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}
