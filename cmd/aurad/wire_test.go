package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/capability/httpcap"
	"github.com/GoCodeAlone/aura/config"
	provmock "github.com/GoCodeAlone/aura/provider/mock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildCapabilities_Defaults(t *testing.T) {
	caps, err := buildCapabilities(nil, provmock.New())
	if err != nil {
		t.Fatalf("buildCapabilities: %v", err)
	}
	if got, want := len(caps.Domains()), len(capability.Domains()); got != want {
		t.Fatalf("expected %d domains, got %d", want, got)
	}
	p, ok := caps.Get(capability.DomainImage)
	if !ok {
		t.Fatal("image domain not registered")
	}
	if p.Name() != "image:mock" {
		t.Errorf("unexpected image provider %q", p.Name())
	}
}

func TestBuildCapabilities_HTTPOverride(t *testing.T) {
	overrides := map[string]config.CapabilityConfig{
		"hotel": {Backend: "http", URL: "http://127.0.0.1:1/hotel", Timeout: time.Second},
	}
	caps, err := buildCapabilities(overrides, provmock.New())
	if err != nil {
		t.Fatalf("buildCapabilities: %v", err)
	}
	p, _ := caps.Get(capability.DomainHotel)
	if _, ok := p.(*httpcap.Client); !ok {
		t.Errorf("expected http client for hotel, got %T", p)
	}
}

func TestBuildCapabilities_UnknownDomain(t *testing.T) {
	_, err := buildCapabilities(map[string]config.CapabilityConfig{"spaceship": {}}, nil)
	if err == nil {
		t.Fatal("expected error for unknown domain")
	}
}

func TestNewLLM(t *testing.T) {
	m, err := newLLM(config.LLMConfig{Provider: "mock"})
	if err != nil || m.Name() != "mock" {
		t.Fatalf("mock: %v %v", m, err)
	}

	t.Setenv("AURA_TEST_KEY", "")
	if _, err := newLLM(config.LLMConfig{Provider: "openai", APIKeyEnv: "AURA_TEST_KEY"}); err == nil {
		t.Error("expected error for missing key")
	}
	t.Setenv("AURA_TEST_KEY", "sk-test")
	o, err := newLLM(config.LLMConfig{Provider: "openai", APIKeyEnv: "AURA_TEST_KEY"})
	if err != nil || o.Name() != "openai" {
		t.Fatalf("openai: %v %v", o, err)
	}

	if _, err := newLLM(config.LLMConfig{Provider: "parrot"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestBuild_ServesStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Auth.JWTSecret = "test-secret"

	a, err := build(cfg, quietLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	srv := httptest.NewServer(a.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
