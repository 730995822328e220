package main

import (
	"context"
	"log"

	"holoport-stats/internal/agent"
	"holoport-stats/internal/config"
	"holoport-stats/internal/conductor"
	"holoport-stats/internal/delivery"
	"holoport-stats/internal/inventory"
	"holoport-stats/internal/keys"
	"holoport-stats/internal/secret"
	"holoport-stats/internal/system"
)

type app struct {
	cfg    *config.Config
	logger *log.Logger
	facts  system.FactProvider
}

func (a *app) wire(cfg *config.Config, logger *log.Logger) {
	a.cfg = cfg
	a.logger = logger
	if a.facts == nil {
		a.facts = system.NewShellFacts(logger)
	}
}

func (a *app) dialOptions() conductor.DialOptions {
	retry := a.cfg.Conductor.Retry
	return conductor.DialOptions{
		Host: a.cfg.Conductor.Host,
		Retry: conductor.RetryPolicy{
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   retry.BaseDelay,
			Multiplier:  retry.Multiplier,
			MaxDelay:    retry.MaxDelay,
		},
		RequestTimeout: a.cfg.Conductor.RequestTimeout,
		Logger:         a.logger,
	}
}

func (a *app) dialAdmin(ctx context.Context) (agent.AdminConn, error) {
	ch, err := conductor.Dial(ctx, a.cfg.Conductor.AdminPort, a.dialOptions())
	if err != nil {
		return nil, err
	}
	return conductor.NewAdminClient(ch), nil
}

func (a *app) dialApp(ctx context.Context) (agent.AppConn, error) {
	ch, err := conductor.Dial(ctx, a.cfg.Conductor.AppPort, a.dialOptions())
	if err != nil {
		return nil, err
	}
	return conductor.NewAppClient(ch), nil
}

func (a *app) loadIdentity() (*keys.Identity, error) {
	if a.cfg.Identity.ConfigPath == "" {
		return nil, config.Errorf("identity.config_path", "not set")
	}
	password := a.cfg.Password()
	defer secret.Wipe(password)

	id, err := keys.Load(a.cfg.Identity.ConfigPath, password)
	if err != nil {
		return nil, err
	}
	a.logger.Printf("identity: loaded host key %s (fingerprint %s)", id.PublicID(), id.Fingerprint())
	return id, nil
}

// coreAppID resolves the installed id of the core app from the happs
// manifest. An unconfigured manifest disables usage counting.
func (a *app) coreAppID() (string, error) {
	if a.cfg.Happs.Path == "" {
		return "", nil
	}
	manifest, err := inventory.LoadHappsFile(a.cfg.Happs.Path)
	if err != nil {
		return "", err
	}
	core, ok := manifest.FindCoreApp(a.cfg.Happs.UIDOverride)
	if !ok {
		return "", config.Errorf(a.cfg.Happs.Path, "no core-app entry in core_happs")
	}
	return core.ID(a.cfg.Happs.UIDOverride), nil
}

// newRunner builds a runner around an already loaded identity. A nil
// sender makes every run a dry run.
func (a *app) newRunner(id *keys.Identity, sender agent.Sender, history agent.Recorder, status *agent.Status) (*agent.Runner, error) {
	coreAppID, err := a.coreAppID()
	if err != nil {
		return nil, err
	}
	return &agent.Runner{
		Identity:  id,
		Facts:     a.facts,
		Admin:     a.dialAdmin,
		App:       a.dialApp,
		CoreAppID: coreAppID,
		Sender:    sender,
		Archive:   history,
		Status:    status,
		Logger:    a.logger,
	}, nil
}

func (a *app) sender() *delivery.Client {
	return delivery.New(a.cfg.Delivery.Endpoint, a.cfg.Delivery.Timeout)
}
