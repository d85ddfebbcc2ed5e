package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("server section = %+v", cfg.Server)
	}
	if cfg.Workflow.ResponseTimeout != Duration(10*time.Minute) {
		t.Fatalf("response_timeout = %v", cfg.Workflow.ResponseTimeout)
	}
	if cfg.Retention.ReplyTTL != Duration(24*time.Hour) {
		t.Fatalf("reply_ttl = %v", cfg.Retention.ReplyTTL)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9090
workflow:
  webhook_url: https://flows.example.com/in
  response_timeout: 2m
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("base_path default lost: %q", cfg.Server.BasePath)
	}
	if cfg.Workflow.ResponseTimeout != Duration(2*time.Minute) {
		t.Fatalf("response_timeout = %v", cfg.Workflow.ResponseTimeout)
	}
}

func TestValidateRejections(t *testing.T) {
	noAddr := Default()
	noAddr.Server.Addr = ""
	if err := noAddr.Validate(); err == nil || !strings.Contains(err.Error(), "addr") {
		t.Errorf("missing addr accepted: %v", err)
	}

	noHook := Default()
	noHook.Workflow.WebhookURL = ""
	if err := noHook.Validate(); err == nil || !strings.Contains(err.Error(), "webhook_url") {
		t.Errorf("missing webhook_url accepted: %v", err)
	}

	negTimeout := Default()
	negTimeout.Workflow.ResponseTimeout = Duration(-time.Second)
	if err := negTimeout.Validate(); err == nil {
		t.Error("negative response_timeout accepted")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("LoadOptional on empty workspace: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}

	if err := os.WriteFile(filepath.Join(dir, "prepcal.yml"), []byte("server:\n  addr: 127.0.0.1:7000\nworkflow:\n  webhook_url: https://x.example/in\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}
