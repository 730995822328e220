package conductor

import (
	"context"
	"fmt"
)

const (
	requestListApps  = "list_apps"
	responseAppsList = "apps_listed"
)

type listAppsRequest struct {
	StatusFilter *StatusKind `cbor:"status_filter"`
}

// AdminClient is the control-plane interface of the conductor.
type AdminClient struct {
	ch *Channel
}

func NewAdminClient(ch *Channel) *AdminClient {
	return &AdminClient{ch: ch}
}

// ListApps returns every installed app, or only those in the filtered
// status when filter is non-nil, in the order the conductor reports
// them.
func (c *AdminClient) ListApps(ctx context.Context, filter *StatusKind) ([]AppInfo, error) {
	if filter != nil && !filter.Valid() {
		return nil, fmt.Errorf("list_apps: unknown status filter %q", *filter)
	}
	resp, err := c.ch.Request(ctx, Request{Type: requestListApps, Data: listAppsRequest{StatusFilter: filter}})
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case responseAppsList:
		var apps []AppInfo
		if err := resp.decode(&apps); err != nil {
			return nil, err
		}
		return apps, nil
	default:
		return nil, resp.unexpected()
	}
}

func (c *AdminClient) Close() error {
	return c.ch.Close()
}
