// Package inventory builds health and usage views of the apps installed
// in a conductor.
package inventory

import (
	"context"
	"fmt"

	"holoport-stats/internal/conductor"
)

// AppLister is the part of the admin interface inventory needs.
type AppLister interface {
	ListApps(ctx context.Context, filter *conductor.StatusKind) ([]conductor.AppInfo, error)
}

// AppInspector is the part of the app interface inventory needs.
type AppInspector interface {
	AppInfo(ctx context.Context, installedAppID string) (*conductor.AppInfo, error)
	CallZome(ctx context.Context, call conductor.ZomeCall) ([]byte, error)
}

// HealthMap is a full snapshot of installed app id to status.
type HealthMap map[string]conductor.AppStatus

// Health lists every installed app and records its current status.
func Health(ctx context.Context, admin AppLister) (HealthMap, error) {
	apps, err := admin.ListApps(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing installed apps: %w", err)
	}

	health := make(HealthMap, len(apps))
	for _, app := range apps {
		health[app.InstalledAppID] = app.Status
	}
	return health, nil
}
