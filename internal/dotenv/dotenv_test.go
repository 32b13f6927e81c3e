package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNoop(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), ".env"), "")
	if err != nil {
		t.Fatalf("Load missing file error: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded=%v, want none", loaded)
	}
}

func TestLoad_PreservesExistingAndFirstFileWins(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env.local")
	second := filepath.Join(dir, ".env")
	if err := os.WriteFile(first, []byte("TRIAGE_DOTENV_A=local\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	content := "" +
		"# comment\n" +
		"TRIAGE_DOTENV_A=shared\n" +
		"TRIAGE_DOTENV_QUOTED=\"hello world\"\n" +
		"export TRIAGE_DOTENV_EXPORTED=ok\n" +
		"TRIAGE_DOTENV_EXISTING=from_file\n"
	if err := os.WriteFile(second, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("TRIAGE_DOTENV_EXISTING", "already_set")
	for _, k := range []string{"TRIAGE_DOTENV_A", "TRIAGE_DOTENV_QUOTED", "TRIAGE_DOTENV_EXPORTED"} {
		key := k
		t.Cleanup(func() { os.Unsetenv(key) })
	}

	loaded, err := Load(first, second)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded=%v, want both files", loaded)
	}

	tests := map[string]string{
		"TRIAGE_DOTENV_A":        "local",
		"TRIAGE_DOTENV_QUOTED":   "hello world",
		"TRIAGE_DOTENV_EXPORTED": "ok",
		"TRIAGE_DOTENV_EXISTING": "already_set",
	}
	for key, want := range tests {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s=%q, want %q", key, got, want)
		}
	}
}
