package conductor

import "context"

const (
	requestAppInfo   = "app_info"
	requestCallZome  = "call_zome"
	responseAppInfo  = "app_info"
	responseZomeCall = "zome_called"
)

type appInfoRequest struct {
	InstalledAppID string `cbor:"installed_app_id"`
}

// AppClient is the data-plane interface of the conductor.
type AppClient struct {
	ch *Channel
}

func NewAppClient(ch *Channel) *AppClient {
	return &AppClient{ch: ch}
}

// AppInfo describes one installed app. A nil result with a nil error
// means the app is not installed.
func (c *AppClient) AppInfo(ctx context.Context, installedAppID string) (*AppInfo, error) {
	resp, err := c.ch.Request(ctx, Request{Type: requestAppInfo, Data: appInfoRequest{InstalledAppID: installedAppID}})
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case responseAppInfo:
		var info *AppInfo
		if err := resp.decode(&info); err != nil {
			return nil, err
		}
		return info, nil
	default:
		return nil, resp.unexpected()
	}
}

// CallZome invokes one zome function and returns its encoded result.
func (c *AppClient) CallZome(ctx context.Context, call ZomeCall) ([]byte, error) {
	resp, err := c.ch.Request(ctx, Request{Type: requestCallZome, Data: call})
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case responseZomeCall:
		var result []byte
		if err := resp.decode(&result); err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, resp.unexpected()
	}
}

func (c *AppClient) Close() error {
	return c.ch.Close()
}
