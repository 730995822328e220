package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"holoport-stats/internal/codec"
	"holoport-stats/internal/config"
	"holoport-stats/internal/conductor"
)

var ErrCoreAppNotInstalled = errors.New("core app is not installed")

const (
	registryZome = "hha"
	registryFn   = "get_happs"
)

// HostedHapp is one entry of the core app's hosting registry. Only the
// id is used; the rest of the bundle is carried for logging.
type HostedHapp struct {
	ID         string `cbor:"id"`
	Name       string `cbor:"name,omitempty"`
	BundleURL  string `cbor:"bundle_url,omitempty"`
	HostedURL  string `cbor:"hosted_url,omitempty"`
	IsDraft    bool   `cbor:"is_draft,omitempty"`
	IsClone    bool   `cbor:"is_clone,omitempty"`
	ProviderPK []byte `cbor:"provider_pubkey,omitempty"`
}

// HostedCatalog asks the core app's registry for every happ it hosts.
func HostedCatalog(ctx context.Context, app AppInspector, coreAppID string) ([]HostedHapp, error) {
	info, err := app.AppInfo(ctx, coreAppID)
	if err != nil {
		return nil, fmt.Errorf("looking up core app %q: %w", coreAppID, err)
	}
	if info == nil {
		return nil, &config.Error{Subject: coreAppID, Err: ErrCoreAppNotInstalled}
	}
	if len(info.Cells) == 0 {
		return nil, config.Errorf(coreAppID, "core app has no cells")
	}

	payload, err := codec.Marshal(nil)
	if err != nil {
		return nil, err
	}
	cell := info.Cells[0]
	result, err := app.CallZome(ctx, conductor.ZomeCall{
		CellID:     cell,
		ZomeName:   registryZome,
		FnName:     registryFn,
		Payload:    payload,
		Provenance: cell.AgentPubKey,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s/%s on %q: %w", registryZome, registryFn, coreAppID, err)
	}

	var catalog []HostedHapp
	if err := codec.Unmarshal(result, &catalog); err != nil {
		return nil, &conductor.UnexpectedResponseError{
			Request: registryZome + "/" + registryFn,
			Got:     "zome_called with undecodable catalog",
			Err:     err,
		}
	}
	return catalog, nil
}

// HostedUsage counts, for each happ in the core app's catalog, how many
// installed apps carry its id. Every catalog id appears in the result,
// even with a zero count.
func HostedUsage(ctx context.Context, app AppInspector, admin AppLister, coreAppID string) (map[string]int, error) {
	catalog, err := HostedCatalog(ctx, app, coreAppID)
	if err != nil {
		return nil, err
	}

	installed, err := admin.ListApps(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing installed apps: %w", err)
	}

	ids := make([]string, 0, len(installed))
	for _, info := range installed {
		ids = append(ids, info.InstalledAppID)
	}
	return CountUsage(catalog, ids), nil
}

// CountUsage increments every catalog id that an installed id contains.
func CountUsage(catalog []HostedHapp, installed []string) map[string]int {
	usage := make(map[string]int, len(catalog))
	for _, happ := range catalog {
		usage[happ.ID] = 0
	}
	for _, id := range installed {
		for happID := range usage {
			if happID != "" && strings.Contains(id, happID) {
				usage[happID]++
			}
		}
	}
	return usage
}
