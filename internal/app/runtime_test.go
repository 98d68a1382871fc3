package app

import (
	"testing"

	_ "github.com/veranda-ops/veranda-ops/internal/testing/guard"
)

func TestInTestModeSetByGuard(t *testing.T) {
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode to be enabled under the test guard")
	}
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv("VERANDA_TEST_MODE", "0")
	RefreshTestMode()
	if InTestMode() {
		t.Fatal("expected test mode off after refresh")
	}
	t.Setenv("VERANDA_TEST_MODE", "1")
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode on after refresh")
	}
}
