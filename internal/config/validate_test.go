package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	result := Default().Validate()
	if result.HasFatals() {
		t.Fatalf("expected default config to have no fatals, got %v", result.Fatals)
	}
}

func TestValidateRejectsPortConflicts(t *testing.T) {
	cfg := Default()
	cfg.Stream.Video.Port = cfg.Stream.Audio.Port

	result := cfg.Validate()
	if !result.HasFatals() {
		t.Fatalf("expected port conflict to be fatal")
	}
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	cfg := Default()
	cfg.StreamTimeout = 0

	result := cfg.Validate()
	if !result.HasFatals() {
		t.Fatalf("expected zero stream_timeout to be fatal")
	}
}

func TestValidateWarnsOnEmptyApplications(t *testing.T) {
	cfg := Default()
	cfg.Applications = nil

	result := cfg.Validate()
	if result.HasFatals() {
		t.Fatalf("expected no fatals, got %v", result.Fatals)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning about empty application list")
	}
}

func TestApplicationIDIsStableAndDeterministic(t *testing.T) {
	a := ApplicationConfig{Title: "Steam"}
	b := ApplicationConfig{Title: "Steam"}
	if a.ID() != b.ID() {
		t.Fatalf("expected identical titles to hash to the same id")
	}

	c := ApplicationConfig{Title: "Desktop"}
	if a.ID() == c.ID() {
		t.Fatalf("expected different titles to hash to different ids")
	}
}
