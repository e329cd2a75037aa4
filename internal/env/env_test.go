package env

import (
	"os"
	"testing"
)

func TestMergeOverridesAndExpands(t *testing.T) {
	e := New()
	e.FromList([]string{"HOME=/home/u", "PATH=/bin", "broken", "=nokey"})
	got := e.Merge(map[string]string{
		"PATH":    "/opt/bin:${PATH}",
		"DATA":    "${HOME}/data",
		"UNKNOWN": "${NOPE}",
		"":        "skipped",
	})

	want := map[string]string{
		"HOME":    "/home/u",
		"PATH":    "/opt/bin:/bin",
		"DATA":    "/home/u/data",
		"UNKNOWN": "${NOPE}",
	}
	if len(got) != len(want) {
		t.Fatalf("Merge = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestMergeDefaultsToOS(t *testing.T) {
	t.Setenv("LOCAL_COMPOSE_ENV_TEST", "yes")
	got := New().Merge(nil)
	if got["LOCAL_COMPOSE_ENV_TEST"] != "yes" {
		t.Fatalf("OS env not inherited")
	}
	if got["PATH"] != os.Getenv("PATH") {
		t.Fatalf("PATH not inherited")
	}
}

func TestExpandPrefersLongestKey(t *testing.T) {
	e := New()
	e.FromList([]string{"A=1", "AB=2"})
	if got := e.Merge(map[string]string{"X": "${AB}-${A}"})["X"]; got != "2-1" {
		t.Fatalf("X = %q", got)
	}
}

func FuzzParse(f *testing.F) {
	f.Add("K=V")
	f.Add("=V")
	f.Add("K==V")
	f.Fuzz(func(t *testing.T, kv string) {
		for k := range Parse([]string{kv}) {
			if k == "" {
				t.Fatalf("empty key from %q", kv)
			}
		}
	})
}
