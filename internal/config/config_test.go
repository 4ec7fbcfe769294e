package config

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MARKETPLACE_OWNER", "EQowner")
	t.Setenv("PLATFORM_FEE_BPS", "")

	cfg := Load()
	if cfg.PlatformFeeBPS != 250 {
		t.Errorf("PlatformFeeBPS = %d, want 250", cfg.PlatformFeeBPS)
	}
	if cfg.VotingDurationSeconds != 259200 || cfg.RevealDurationSeconds != 86400 {
		t.Errorf("durations = %d/%d", cfg.VotingDurationSeconds, cfg.RevealDurationSeconds)
	}
	if cfg.FeeRecipient != cfg.ExchangeAccount {
		t.Errorf("FeeRecipient = %q, want exchange account %q", cfg.FeeRecipient, cfg.ExchangeAccount)
	}
	if cfg.FinalizeInterval != time.Minute {
		t.Errorf("FinalizeInterval = %s", cfg.FinalizeInterval)
	}
	if err := cfg.Validate(zap.NewNop()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"no owner", func(c *Config) { c.MarketplaceOwner = "" }, true},
		{"fee above ceiling", func(c *Config) { c.PlatformFeeBPS = 1001 }, true},
		{"fee at ceiling", func(c *Config) { c.PlatformFeeBPS = 1000 }, false},
		{"zero reveal", func(c *Config) { c.RevealDurationSeconds = 0 }, true},
		{"vault is treasury", func(c *Config) { c.VaultIdentity = c.ExchangeAccount }, true},
		{"zero finalize interval", func(c *Config) { c.FinalizeInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				MarketplaceOwner:      "EQowner",
				VaultIdentity:         "exchange:vault",
				ExchangeAccount:       "exchange:treasury",
				PlatformFeeBPS:        250,
				VotingDurationSeconds: 10,
				RevealDurationSeconds: 10,
				JWTSecret:             "s",
				FinalizeInterval:      time.Minute,
				WithdrawalInterval:    time.Minute,
			}
			tt.mutate(cfg)
			err := cfg.Validate(zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{MarketplaceOwner: "EQowner", AdminIdentities: parseList(" EQa , ,EQb")}
	for _, id := range []string{"EQowner", "EQa", "EQb"} {
		if !cfg.IsAdmin(id) {
			t.Errorf("IsAdmin(%q) = false", id)
		}
	}
	if cfg.IsAdmin("") || cfg.IsAdmin("EQc") {
		t.Error("unexpected admin")
	}
}
