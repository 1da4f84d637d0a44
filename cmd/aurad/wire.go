package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/GoCodeAlone/aura/agent"
	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/capability/httpcap"
	capmock "github.com/GoCodeAlone/aura/capability/mock"
	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/config"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/dispatch"
	"github.com/GoCodeAlone/aura/intent"
	"github.com/GoCodeAlone/aura/internal/version"
	"github.com/GoCodeAlone/aura/provider"
	provmock "github.com/GoCodeAlone/aura/provider/mock"
	"github.com/GoCodeAlone/aura/provider/openai"
	"github.com/GoCodeAlone/aura/server"
	"github.com/GoCodeAlone/aura/suggest"
	"github.com/GoCodeAlone/aura/task"
)

// llm is what the daemon needs from a language model backend.
type llm interface {
	provider.Provider
	provider.ImageGenerator
}

// app holds the wired components and the resources to release.
type app struct {
	server   *server.Server
	registry *task.Registry
	agent    *agent.Agent
	bus      comms.Bus
	closers  []io.Closer
	unrelay  func()
}

func (a *app) Close() {
	if a.unrelay != nil {
		a.unrelay()
	}
	a.registry.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func build(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			if a.registry != nil {
				a.Close()
				return
			}
			for i := len(a.closers) - 1; i >= 0; i-- {
				_ = a.closers[i].Close()
			}
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	taskStore, err := task.NewSQLiteStore(filepath.Join(cfg.DataDir, "tasks.db"))
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	a.closers = append(a.closers, taskStore)
	convStore, err := conversation.NewSQLiteStore(filepath.Join(cfg.DataDir, "conversations.db"))
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	a.closers = append(a.closers, convStore)

	model, err := newLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	bus, err := newBus(cfg.Bus, logger)
	if err != nil {
		return nil, err
	}
	a.bus = bus
	if c, isCloser := bus.(io.Closer); isCloser {
		a.closers = append(a.closers, c)
	}

	a.registry = task.NewRegistry(taskStore, task.WithLogger(logger.With("component", "registry")))
	sub := comms.RelayTasks(a.registry, bus, logger.With("component", "relay"))
	a.unrelay = sub.Unsubscribe

	caps, err := buildCapabilities(cfg.Capabilities, model)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(a.registry,
		dispatch.WithProviderTimeout(cfg.Dispatch.ProviderTimeout),
		dispatch.WithLogger(logger.With("component", "dispatch")))
	if err := d.RegisterStandard(caps); err != nil {
		return nil, err
	}

	agentCfg := agent.Config{
		Classifier:          intent.NewClassifier(model, intent.WithLogger(logger.With("component", "classifier"))),
		Dispatcher:          d,
		Conversations:       convStore,
		Bus:                 bus,
		Logger:              logger,
		SuggestAfterFailure: cfg.Suggestions.AfterFailure,
	}
	if cfg.Suggestions.Enabled {
		agentCfg.Suggest = suggest.New(model, a.registry,
			suggest.WithMax(cfg.Suggestions.Max),
			suggest.WithLogger(logger.With("component", "suggest")))
	}
	a.agent, err = agent.New(agentCfg)
	if err != nil {
		return nil, err
	}

	srv := server.New(*cfg, version.Version, logger.With("component", "server"))
	srv.SetAgent(a.agent)
	srv.SetConversations(convStore)
	srv.SetTasks(a.registry)
	srv.SetBus(bus)
	a.server = srv

	logger.Info("wired",
		"llm", model.Name(),
		"bus", cfg.Bus.Backend,
		"routes", len(d.Routes()),
		"suggestions", cfg.Suggestions.Enabled,
	)
	ok = true
	return a, nil
}

func newLLM(cfg config.LLMConfig) (llm, error) {
	switch cfg.Provider {
	case "mock", "":
		return provmock.New(), nil
	case "openai":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("llm: openai requires an API key in $%s", cfg.APIKeyEnv)
		}
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.ImageModel != "" {
			opts = append(opts, openai.WithImageModel(cfg.ImageModel))
		}
		return openai.New(key, cfg.Model, opts...), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func newBus(cfg config.BusConfig, logger *slog.Logger) (comms.Bus, error) {
	switch cfg.Backend {
	case "memory", "":
		return comms.NewInMemoryBus(), nil
	case "redis":
		return comms.NewRedisBus(comms.RedisConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			ChannelPrefix: cfg.ChannelPrefix,
		}, logger.With("component", "bus"))
	default:
		return nil, fmt.Errorf("bus: unknown backend %q", cfg.Backend)
	}
}

// buildCapabilities registers a provider for every domain. Booking domains
// default to the mock providers sharing one ledger; the image domain is
// served by the LLM backend.
func buildCapabilities(overrides map[string]config.CapabilityConfig, images provider.ImageGenerator) (*capability.Registry, error) {
	caps := capability.NewRegistry()
	ledger := capmock.NewLedger()

	for name := range overrides {
		if !knownDomain(capability.Domain(name)) {
			return nil, fmt.Errorf("capabilities: unknown domain %q", name)
		}
	}

	for _, d := range capability.Domains() {
		cc := overrides[string(d)]
		var p capability.Provider
		switch {
		case cc.Backend == "http":
			var opts []httpcap.Option
			if cc.Timeout > 0 {
				opts = append(opts, httpcap.WithTimeout(cc.Timeout))
			}
			p = httpcap.New(string(d), cc.URL, opts...)
		case d == capability.DomainImage:
			if images == nil {
				continue
			}
			p = capability.NewImageProvider(images)
		default:
			mp, err := capmock.New(d, capmock.WithLedger(ledger), capmock.WithLatency(cc.Latency))
			if err != nil {
				return nil, fmt.Errorf("capabilities: %w", err)
			}
			p = mp
		}
		if err := caps.Register(d, p); err != nil {
			return nil, err
		}
	}
	if len(caps.Domains()) == 0 {
		return nil, errors.New("capabilities: no providers registered")
	}
	return caps, nil
}

func knownDomain(d capability.Domain) bool {
	for _, k := range capability.Domains() {
		if k == d {
			return true
		}
	}
	return false
}
