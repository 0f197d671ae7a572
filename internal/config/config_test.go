package config

import "testing"

func TestFromEnvironmentDefaults(t *testing.T) {
	for _, v := range []string{envDefaultBase, envDefaultNamespace, envDisableRegistry, envDisableDaemon} {
		t.Setenv(v, "")
	}
	cfg := FromEnvironment()
	if cfg.DefaultBase != "" || cfg.DefaultNamespace != "" {
		t.Errorf("expected empty defaults, got %+v", cfg)
	}
	if cfg.DisableRegistry || cfg.DisableDaemon {
		t.Errorf("expected both disable flags false, got %+v", cfg)
	}
}

func TestFromEnvironmentOverrides(t *testing.T) {
	t.Setenv(envDefaultBase, "registry.example.com")
	t.Setenv(envDefaultNamespace, "myorg")
	t.Setenv(envDisableRegistry, "1")
	t.Setenv(envDisableDaemon, "true")

	cfg := FromEnvironment()
	if cfg.DefaultBase != "registry.example.com" {
		t.Errorf("got DefaultBase %q", cfg.DefaultBase)
	}
	if cfg.DefaultNamespace != "myorg" {
		t.Errorf("got DefaultNamespace %q", cfg.DefaultNamespace)
	}
	if !cfg.DisableRegistry {
		t.Error("expected DisableRegistry true")
	}
	if !cfg.DisableDaemon {
		t.Error("expected DisableDaemon true")
	}
}

func TestFromEnvironmentDisableFlagZeroIsFalse(t *testing.T) {
	t.Setenv(envDisableRegistry, "0")
	cfg := FromEnvironment()
	if cfg.DisableRegistry {
		t.Error("expected \"0\" to mean disabled=false")
	}
}
