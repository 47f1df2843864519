package config

import "testing"

type envTestConfig struct {
	Address string `env:"CONFIG_TEST_ADDRESS" envDefault:"127.0.0.1:7070"`
	Debug   bool   `env:"CONFIG_TEST_DEBUG" envDefault:"false"`
}

func TestParseEnvAppliesDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Address != "127.0.0.1:7070" {
		t.Fatalf("expected default address, got %q", cfg.Address)
	}
	if cfg.Debug {
		t.Fatal("expected debug default false")
	}
}

func TestParseEnvReadsOverrides(t *testing.T) {
	t.Setenv("CONFIG_TEST_ADDRESS", "0.0.0.0:9000")
	t.Setenv("CONFIG_TEST_DEBUG", "true")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Address != "0.0.0.0:9000" {
		t.Fatalf("expected env address, got %q", cfg.Address)
	}
	if !cfg.Debug {
		t.Fatal("expected debug override true")
	}
}
