package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsCadencePerJob(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubJob{name: "delivery_retention"}, 24*time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "fatal_delivery_report"}, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Job.Name() != "delivery_retention" || entries[0].Every != 24*time.Hour {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Every != time.Hour {
		t.Fatalf("unexpected cadence %s", entries[1].Every)
	}
	entries[0] = Entry{}
	if registry.Entries()[0].Job == nil {
		t.Fatalf("entries slice leaked")
	}
}

func TestRegistryRejectsDuplicateLeaseNames(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubJob{name: "outbox_retention"}, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubJob{name: "outbox_retention"}, 2*time.Hour); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
}

func TestRegistryRejectsInvalidEntries(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(nil, time.Hour); err == nil {
		t.Fatalf("expected nil job to be rejected")
	}
	if err := registry.Register(&stubJob{name: "reconcile"}, 0); err == nil {
		t.Fatalf("expected zero cadence to be rejected")
	}
	if len(registry.Entries()) != 0 {
		t.Fatalf("invalid entries must not be stored")
	}
}
