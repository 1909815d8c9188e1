package config

import (
	"testing"
	"time"
)

func TestGetEnvBool(t *testing.T) {
	t.Setenv("X_BOOL", "true")
	if !GetEnvBool("X_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("X_BOOL", "not-a-bool")
	if GetEnvBool("X_BOOL", false) {
		t.Error("unparseable value should fall back")
	}
	if !GetEnvBool("X_UNSET_BOOL", true) {
		t.Error("unset variable should fall back")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_DUR", "90s")
	if got := GetEnvDuration("X_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("X_DUR", "soon")
	if got := GetEnvDuration("X_DUR", time.Minute); got != time.Minute {
		t.Errorf("unparseable value should fall back, got %v", got)
	}
}
