package instance

import "testing"

func TestGetIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("ESCROWLEDGER_INSTANCE_ID", "cron-a")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected web.1, got %s", got)
	}
}

func TestGetIDFallsBackToInstanceEnv(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("ESCROWLEDGER_INSTANCE_ID", "cron-a")
	if got := GetID(); got != "cron-a" {
		t.Fatalf("expected cron-a, got %s", got)
	}
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("ESCROWLEDGER_INSTANCE_ID", "")
	if GetID() == "" {
		t.Fatal("expected a non-empty id")
	}
}
