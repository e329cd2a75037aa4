package process

import (
	"errors"
	"testing"
)

func TestSpecArgv(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{"words", Spec{Command: "ruby server.rb --port 80"}, []string{"ruby", "server.rb", "--port", "80"}},
		{"quoted", Spec{Command: `sh -c 'echo hi; exit 3'`}, []string{"sh", "-c", "echo hi; exit 3"}},
		{"shell", Spec{Command: "echo $HOME | wc -c", Shell: true}, []string{"/bin/sh", "-c", "echo $HOME | wc -c"}},
		{"args", Spec{Command: "ignored", Args: []string{"python", "-m", "http.server"}}, []string{"python", "-m", "http.server"}},
		{"args shell", Spec{Args: []string{"echo", "a", "&&", "echo", "b"}, Shell: true}, []string{"/bin/sh", "-c", "echo a && echo b"}},
		{"trimmed", Spec{Command: "  true  "}, []string{"true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Argv()
			if err != nil {
				t.Fatalf("Argv: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Argv = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Argv = %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestSpecArgvEmpty(t *testing.T) {
	for _, s := range []Spec{{}, {Command: "   "}, {Command: "", Shell: true}} {
		if _, err := s.Argv(); !errors.Is(err, ErrEmptyCommand) {
			t.Fatalf("expected ErrEmptyCommand for %+v, got %v", s, err)
		}
	}
}

func TestSpecArgvUnterminatedQuote(t *testing.T) {
	if _, err := (Spec{Command: `echo "oops`}).Argv(); err == nil {
		t.Fatal("expected split error")
	}
}

func TestSpecEnviron(t *testing.T) {
	if (Spec{}).Environ() != nil {
		t.Fatal("nil env must inherit")
	}
	got := Spec{Env: map[string]string{"B": "2", "A": "1", "": "x"}}.Environ()
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Fatalf("Environ = %q", got)
	}
}
