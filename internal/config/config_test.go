package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clash")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RedisHost != "localhost" || cfg.RedisPort != "6379" {
		t.Fatalf("unexpected redis defaults %s:%s", cfg.RedisHost, cfg.RedisPort)
	}
	if cfg.LobbyPollSeconds != 5 {
		t.Fatalf("expected poll default 5, got %d", cfg.LobbyPollSeconds)
	}
	if cfg.BattleDurationSeconds != 60 {
		t.Fatalf("expected duration default 60, got %d", cfg.BattleDurationSeconds)
	}
}

func TestLoadRejectsBadIntervals(t *testing.T) {
	t.Setenv("LOBBY_POLL_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected poll interval validation error")
	}

	t.Setenv("LOBBY_POLL_SECONDS", "5")
	t.Setenv("BATTLE_DURATION_SECONDS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected duration validation error")
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv("does-not-exist.env"); err != nil {
		t.Fatalf("missing file should be fine: %v", err)
	}
}
