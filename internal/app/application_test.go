package app

import (
	"context"
	"testing"

	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/payment"
	"github.com/brandloom/storefront/internal/upload"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNewDefaultsToInProcessIntegrations(t *testing.T) {
	application, err := New(Options{Config: testConfig(t)}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if _, ok := application.Objects.(*upload.MemoryStore); !ok {
		t.Fatalf("expected memory object store, got %T", application.Objects)
	}
	if application.Orders == nil || application.Marketing == nil || application.Hub == nil {
		t.Fatalf("services not wired")
	}

	want := []string{"local-cache", "notify", "scheduler"}
	got := application.Services()
	if len(got) != len(want) {
		t.Fatalf("services = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("services = %v, want %v", got, want)
		}
	}
}

func TestApplicationLifecycle(t *testing.T) {
	application, err := New(Options{Config: testConfig(t)}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRunJob(t *testing.T) {
	application, err := New(Options{Config: testConfig(t)}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if names := application.Jobs(); len(names) != 3 || names[0] != "campaign-dispatch" {
		t.Fatalf("unexpected jobs %v", names)
	}
	if err := application.RunJob("pending-expiry"); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if err := application.RunJob("reindex"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExplicitIntegrationsKept(t *testing.T) {
	gw := payment.NewFake("s", "w")
	application, err := New(Options{Config: testConfig(t), Integrations: Integrations{Gateway: gw}}, logging.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if application.Orders.Gateway != gw {
		t.Fatalf("gateway replaced")
	}
}
