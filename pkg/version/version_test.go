package version

import "testing"

func TestVersionFallback(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	// Test binaries carry no module sum, so the injected value wins.
	if got := Version(); got != "v1.2.3" {
		t.Fatalf("Version() = %q", got)
	}
}

func TestGoVersion(t *testing.T) {
	if GoVersion() == "" {
		t.Fatal("GoVersion() returned empty string")
	}
}
