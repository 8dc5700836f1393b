package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
proximity_radius: 12.5
party:
  max_size: 4
matchmaking:
  queues:
    duel: 2
    squad: 8
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.ProximityRadius != 12.5 {
		t.Fatalf("proximity_radius=%v want 12.5", tu.ProximityRadius)
	}
	if tu.Party.MaxSize != 4 {
		t.Fatalf("party.max_size=%d want 4", tu.Party.MaxSize)
	}
	if tu.Chat.MaxLen != Defaults().Chat.MaxLen {
		t.Fatalf("chat.max_len should keep default")
	}
	got := tu.QueueTypes()
	if len(got) < 2 || tu.Matchmaking.Queues["squad"] != 8 {
		t.Fatalf("queues=%v", tu.Matchmaking.Queues)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("guild:\n  ranks: [leader]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected single-rank guild config to be rejected")
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load repo config: %v", err)
	}
	if tu.Matchmaking.Queues["5v5"] != 10 {
		t.Fatalf("5v5 requires %d players, want 10", tu.Matchmaking.Queues["5v5"])
	}
}
