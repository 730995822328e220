package system

import (
	"context"
	"io"
	"log"
	"strconv"
	"strings"
	"time"
)

// Facts describes the host. Every field is optional: a fact that could
// not be read is nil and the report goes out without it.
type Facts struct {
	HoloNetwork    *string
	Channel        *string
	ChannelVersion *string
	HoloportModel  *string
	SSHEnabled     *bool
	ZeroTierIP     *string
	WANIP          *string
}

type FactProvider interface {
	Facts(ctx context.Context) Facts
}

// Pipelines are the shell commands that produce each fact.
type Pipelines struct {
	HoloNetwork    string
	Channel        string
	ChannelVersion string
	HoloportModel  string
	SSHEnabled     string
	ZeroTierIP     string
	WANIP          string
}

var DefaultPipelines = Pipelines{
	HoloNetwork:    `nixos-option system.holoNetwork | sed -n '2 p'`,
	Channel:        `nix-channel --list | grep holo-nixpkgs | cut -d '/' -f 7`,
	ChannelVersion: `nixos-version`,
	HoloportModel:  `nixos-option system.hpos.target 2>/dev/null | sed -n '2 p'`,
	SSHEnabled:     `nixos-option profiles.development.enable 2>/dev/null | sed -n '2 p' | grep true || echo 'false'`,
	ZeroTierIP:     `zerotier-cli listnetworks | sed -n '2 p' | awk -F ' ' '{print $NF}' | awk -F ',' '{print $NF}' | awk -F '/' '{print $1}'`,
	WANIP:          `curl -s https://ipecho.net/plain`,
}

// ShellFacts reads host facts by running one pipeline per fact.
type ShellFacts struct {
	Pipelines Pipelines
	// Timeout bounds each pipeline; zero means 10s.
	Timeout time.Duration
	Logger  *log.Logger

	run func(ctx context.Context, pipeline string) (string, error)
}

func NewShellFacts(logger *log.Logger) *ShellFacts {
	return &ShellFacts{Pipelines: DefaultPipelines, Logger: logger}
}

func (s *ShellFacts) Facts(ctx context.Context) Facts {
	return Facts{
		HoloNetwork:    s.read(ctx, "holo_network", s.Pipelines.HoloNetwork),
		Channel:        s.read(ctx, "channel", s.Pipelines.Channel),
		ChannelVersion: s.read(ctx, "channel_version", s.Pipelines.ChannelVersion),
		HoloportModel:  s.read(ctx, "holoport_model", s.Pipelines.HoloportModel),
		SSHEnabled:     parseBool(s.read(ctx, "ssh_status", s.Pipelines.SSHEnabled)),
		ZeroTierIP:     s.read(ctx, "zt_ip", s.Pipelines.ZeroTierIP),
		WANIP:          s.read(ctx, "wan_ip", s.Pipelines.WANIP),
	}
}

func (s *ShellFacts) read(ctx context.Context, name, pipeline string) *string {
	if pipeline == "" {
		return nil
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	run := s.run
	if run == nil {
		run = RunShell
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := run(ctx, pipeline)
	if err != nil {
		s.logger().Printf("facts: failed to get %s: %v", name, err)
		return nil
	}
	value := cleanOutput(out)
	return &value
}

func (s *ShellFacts) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}

func cleanOutput(out string) string {
	return strings.Trim(strings.TrimSpace(out), `"`)
}

func parseBool(value *string) *bool {
	if value == nil {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	return &b
}
