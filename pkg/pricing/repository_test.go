package pricing

import (
	"errors"
	"testing"
)

func TestStaticRepositoryGet(t *testing.T) {
	inactive := messageConfig()
	inactive.StaticName = "retired_tier"
	inactive.Active = false

	repo, err := NewStaticRepository([]*Config{hybridConfig(), messageConfig(), inactive})
	if err != nil {
		t.Fatalf("NewStaticRepository: %v", err)
	}

	cfg, err := repo.Get("contract_review_strong")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.StaticName != "contract_review_strong" {
		t.Errorf("got %q", cfg.StaticName)
	}

	var notFound *NotFoundError
	if _, err := repo.Get("nope"); !errors.As(err, &notFound) {
		t.Errorf("missing config: expected NotFoundError, got %v", err)
	}
	if _, err := repo.Get("retired_tier"); !errors.As(err, &notFound) {
		t.Errorf("inactive config: expected NotFoundError, got %v", err)
	}

	if got := repo.List(); len(got) != 2 {
		t.Errorf("List returned %d configs, want 2", len(got))
	}
}

func TestStaticRepositoryReload(t *testing.T) {
	repo, err := NewStaticRepository([]*Config{hybridConfig()})
	if err != nil {
		t.Fatal(err)
	}

	bad := hybridConfig()
	bad.CharPerCoin = 0
	if err := repo.Reload([]*Config{bad}); err == nil {
		t.Fatal("invalid reload accepted")
	}
	// Old catalog survives a failed reload.
	if _, err := repo.Get("contract_review_strong"); err != nil {
		t.Errorf("catalog lost after failed reload: %v", err)
	}

	next := messageConfig()
	if err := repo.Reload([]*Config{next}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := repo.Get("contract_review_strong"); err == nil {
		t.Error("stale config still resolvable after reload")
	}
	if _, err := repo.Get("quick_question_medium"); err != nil {
		t.Errorf("new config missing after reload: %v", err)
	}
}

func TestNewStaticRepositoryRejectsInvalid(t *testing.T) {
	bad := hybridConfig()
	bad.TokensStep = 0
	if _, err := NewStaticRepository([]*Config{bad}); err == nil {
		t.Fatal("expected validation error")
	}
}
