// Package agent runs one collect, sign and deliver pass, and schedules
// passes in serve mode.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"holoport-stats/internal/archive"
	"holoport-stats/internal/inventory"
	"holoport-stats/internal/stats"
	"holoport-stats/internal/system"

	"github.com/google/uuid"
)

// AdminConn is an open admin interface.
type AdminConn interface {
	inventory.AppLister
	Close() error
}

// AppConn is an open app interface.
type AppConn interface {
	inventory.AppInspector
	Close() error
}

type Sender interface {
	Send(ctx context.Context, report stats.Report) error
}

type Recorder interface {
	Record(ctx context.Context, entry archive.Entry) error
}

var errNoIdentity = errors.New("signing identity not loaded")

// Runner holds everything one pass needs. Admin is required; the rest
// degrade: no App or CoreAppID skips usage counting, no Sender makes
// the pass a dry run, no Archive skips history.
type Runner struct {
	Identity  stats.Signer
	Facts     system.FactProvider
	Admin     func(ctx context.Context) (AdminConn, error)
	App       func(ctx context.Context) (AppConn, error)
	CoreAppID string
	Sender    Sender
	Archive   Recorder
	Status    *Status
	Logger    *log.Logger

	now func() time.Time
}

type RunResult struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Stats      *stats.Stats `json:"stats"`
	Signature  string       `json:"signature"`
	Delivered  bool         `json:"delivered"`

	report stats.Report
}

func (res RunResult) Report() stats.Report {
	return res.report
}

// Snapshot gathers host facts and inventory into an unsigned payload.
func (r *Runner) Snapshot(ctx context.Context) (*stats.Stats, error) {
	if r.Identity == nil {
		return nil, errNoIdentity
	}
	if r.Admin == nil {
		return nil, errors.New("no admin interface configured")
	}

	var facts system.Facts
	if r.Facts != nil {
		facts = r.Facts.Facts(ctx)
	}
	payload := stats.New(facts, r.Identity.PublicID(), r.clock())

	admin, err := r.Admin(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting admin interface: %w", err)
	}
	defer admin.Close()

	health, err := inventory.Health(ctx, admin)
	if err != nil {
		return nil, err
	}
	buckets, err := inventory.RunningApps(ctx, admin)
	if err != nil {
		return nil, err
	}
	payload.HposAppList = health
	payload.RunningApps = &buckets

	if r.App != nil && r.CoreAppID != "" {
		app, err := r.App(ctx)
		if err != nil {
			return nil, fmt.Errorf("connecting app interface: %w", err)
		}
		defer app.Close()

		usage, err := inventory.HostedUsage(ctx, app, admin, r.CoreAppID)
		if err != nil {
			return nil, err
		}
		payload.HappUsage = usage
	}
	return payload, nil
}

// Run performs one full pass. Nothing is sent unless every step up to
// and including signing succeeded.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{RunID: uuid.NewString(), StartedAt: r.clock()}
	r.Status.begin(res.RunID, res.StartedAt)

	err := r.run(ctx, &res)
	res.FinishedAt = r.clock()

	if err != nil {
		r.logger().Printf("agent: run %s failed: %v", res.RunID, err)
	} else {
		r.logger().Printf("agent: run %s finished (apps=%d delivered=%t)", res.RunID, len(res.Stats.HposAppList), res.Delivered)
	}
	r.record(ctx, res, err)
	r.Status.finish(res, err)
	return res, err
}

func (r *Runner) run(ctx context.Context, res *RunResult) error {
	payload, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	res.Stats = payload

	report, err := payload.Sign(r.Identity)
	if err != nil {
		return err
	}
	res.report = report
	res.Signature = report.Signature

	if r.Sender == nil {
		return nil
	}
	if err := r.Sender.Send(ctx, report); err != nil {
		return fmt.Errorf("delivering report: %w", err)
	}
	res.Delivered = true
	return nil
}

func (r *Runner) record(ctx context.Context, res RunResult, runErr error) {
	if r.Archive == nil {
		return
	}
	entry := archive.Entry{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Status:     archive.StatusOK,
		Delivered:  res.Delivered,
		Signature:  res.Signature,
		Payload:    res.report.Payload,
	}
	if r.Identity != nil {
		entry.HoloportID = r.Identity.PublicID()
	}
	if res.Stats != nil {
		entry.AppCount = len(res.Stats.HposAppList)
	}
	if runErr != nil {
		entry.Status = archive.StatusFailed
		entry.Error = runErr.Error()
	}

	// The run context may already be done; history is still worth keeping.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.Archive.Record(recordCtx, entry); err != nil {
		r.logger().Printf("agent: archive run %s: %v", res.RunID, err)
	}
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return r.Logger
}
