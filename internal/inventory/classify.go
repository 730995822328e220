package inventory

import (
	"context"
	"fmt"
	"strings"

	"holoport-stats/internal/conductor"
)

type Category int

const (
	Unclassified Category = iota
	ReadOnly
	ServiceLogger
	Core
)

func (c Category) String() string {
	switch c {
	case ReadOnly:
		return "read_only"
	case ServiceLogger:
		return "service_logger"
	case Core:
		return "core"
	default:
		return "unclassified"
	}
}

const serviceLoggerMarker = "servicelogger"

// DefaultCorePrefixes are the app names that mark a core app when
// followed by a version marker, as in "core-app:v1::<uid>".
var DefaultCorePrefixes = []string{"core-app", "holofuel"}

// Classify derives the category of an installed app from its id alone.
// The rules are substring matches and are applied in order: a bare id
// with no ':' is read-only, then the service logger marker, then the
// core prefixes.
func Classify(id string) Category {
	if !strings.Contains(id, ":") {
		return ReadOnly
	}
	if strings.Contains(id, serviceLoggerMarker) {
		return ServiceLogger
	}
	for _, prefix := range DefaultCorePrefixes {
		if strings.HasPrefix(id, prefix+":v") {
			return Core
		}
	}
	return Unclassified
}

// Buckets groups running apps by category. Unclassified apps are not
// kept.
type Buckets struct {
	Core          []string `json:"core"`
	ReadOnly      []string `json:"readOnly"`
	ServiceLogger []string `json:"serviceLogger"`
}

func (b Buckets) Len() int {
	return len(b.Core) + len(b.ReadOnly) + len(b.ServiceLogger)
}

// RunningApps classifies the apps the conductor reports as running,
// keeping the order the conductor returned them in.
func RunningApps(ctx context.Context, admin AppLister) (Buckets, error) {
	running := conductor.StatusRunning
	apps, err := admin.ListApps(ctx, &running)
	if err != nil {
		return Buckets{}, fmt.Errorf("listing running apps: %w", err)
	}

	buckets := Buckets{Core: []string{}, ReadOnly: []string{}, ServiceLogger: []string{}}
	for _, app := range apps {
		switch Classify(app.InstalledAppID) {
		case Core:
			buckets.Core = append(buckets.Core, app.InstalledAppID)
		case ReadOnly:
			buckets.ReadOnly = append(buckets.ReadOnly, app.InstalledAppID)
		case ServiceLogger:
			buckets.ServiceLogger = append(buckets.ServiceLogger, app.InstalledAppID)
		}
	}
	return buckets, nil
}
