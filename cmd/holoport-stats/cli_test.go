package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"holoport-stats/internal/codec"
	"holoport-stats/internal/conductor"
	"holoport-stats/internal/conductor/conductortest"
	"holoport-stats/internal/delivery"
	"holoport-stats/internal/inventory"
	"holoport-stats/internal/keys"
	"holoport-stats/internal/system"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFacts struct{}

func (staticFacts) Facts(context.Context) system.Facts {
	network := "devNet"
	return system.Facts{HoloNetwork: &network}
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmdFor(&app{facts: staticFacts{}})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writeV1Bundle(t *testing.T, dir string) string {
	t.Helper()
	seed := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{6}, 32))
	return writeFile(t, dir, "hpos-config.json", fmt.Sprintf(`{"version":1,"seed":%q}`, seed))
}

func fakeConductor(t *testing.T) *conductortest.Server {
	t.Helper()
	cell := conductor.CellID{DnaHash: []byte("dna"), AgentPubKey: []byte("agent")}
	core := conductor.AppInfo{InstalledAppID: "core-app:v0_2", Status: conductor.Running(), Cells: []conductor.CellID{cell}}
	listed := []conductor.AppInfo{
		core,
		{InstalledAppID: "uhCkA::h1", Status: conductor.Running()},
		{InstalledAppID: "hha-happ", Status: conductor.Disabled("user")},
	}
	catalog := mustCBOR(t, []inventory.HostedHapp{{ID: "uhCkA"}})
	return conductortest.New(t, func(req conductortest.Request) conductortest.Reply {
		switch req.Type {
		case "list_apps":
			var args struct {
				StatusFilter *conductor.StatusKind `cbor:"status_filter"`
			}
			_ = req.Decode(&args)
			if args.StatusFilter == nil {
				return conductortest.OK("apps_listed", listed)
			}
			out := []conductor.AppInfo{}
			for _, a := range listed {
				if a.Status.Kind == *args.StatusFilter {
					out = append(out, a)
				}
			}
			return conductortest.OK("apps_listed", out)
		case "app_info":
			return conductortest.OK("app_info", core)
		case "call_zome":
			return conductortest.OK("zome_called", catalog)
		}
		return conductortest.Fail("unknown_request", req.Type)
	})
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	b, err := codec.Marshal(v)
	require.NoError(t, err)
	return b
}

func writeConfig(t *testing.T, dir string, srv *conductortest.Server, endpoint string) string {
	t.Helper()
	happs := writeFile(t, dir, "happs.yaml", "core_happs:\n  - bundle_path: /happs/core-app.v0_2.happ\nself_hosted_happs: []\n")
	return writeFile(t, dir, "config.yaml", fmt.Sprintf(`
conductor:
  host: %s
  admin_port: %d
  app_port: %d
  retry:
    max_attempts: 1
identity:
  config_path: %s
happs:
  path: %s
delivery:
  endpoint: %q
`, srv.Host(), srv.Port(), srv.Port(), writeV1Bundle(t, dir), happs, endpoint))
}

func TestIdentityCommand(t *testing.T) {
	dir := t.TempDir()
	bundle := writeV1Bundle(t, dir)

	stdout, _, err := executeCLI(t, "identity", "--identity", bundle)
	require.NoError(t, err)

	id, err := keys.Load(bundle, nil)
	require.NoError(t, err)
	defer id.Close()
	assert.Contains(t, stdout, id.PublicID())
	assert.Contains(t, stdout, "fingerprint: "+id.Fingerprint())
}

func TestIdentityCommandWithoutBundle(t *testing.T) {
	_, _, err := executeCLI(t, "identity", "--identity", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHealthCommand(t *testing.T) {
	srv := fakeConductor(t)
	cfg := writeConfig(t, t.TempDir(), srv, "")

	stdout, _, err := executeCLI(t, "health", "--config", cfg)
	require.NoError(t, err)

	var out struct {
		HposAppList map[string]map[string]string `json:"hposAppList"`
		RunningApps inventory.Buckets            `json:"runningApps"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "disabled", out.HposAppList["hha-happ"]["type"])
	assert.Equal(t, []string{"core-app:v0_2"}, out.RunningApps.Core)
}

func TestRunCommandDelivers(t *testing.T) {
	var (
		body []byte
		sig  string
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(delivery.HeaderSignature)
	}))
	t.Cleanup(collector.Close)

	dir := t.TempDir()
	cfg := writeConfig(t, dir, fakeConductor(t), collector.URL)

	stdout, _, err := executeCLI(t, "run", "--config", cfg)
	require.NoError(t, err)

	id, err := keys.Load(filepath.Join(dir, "hpos-config.json"), nil)
	require.NoError(t, err)
	defer id.Close()
	assert.True(t, id.Verify(body, sig))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "devNet", payload["holoNetwork"])
	assert.Equal(t, map[string]any{"uhCkA": float64(1)}, payload["happUsage"])

	var res struct {
		Delivered bool `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Delivered)
}

func TestRunCommandNeedsEndpointUnlessDry(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), fakeConductor(t), "")

	_, _, err := executeCLI(t, "run", "--config", cfg)
	assert.ErrorIs(t, err, delivery.ErrNoEndpoint)

	stdout, _, err := executeCLI(t, "run", "--config", cfg, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"delivered": false`)
}

func TestRunCommandConductorDown(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
conductor:
  host: 127.0.0.1
  admin_port: %d
  retry:
    max_attempts: 2
    base_delay: 1ms
identity:
  config_path: %s
`, conductortest.ClosedPort(t), writeV1Bundle(t, dir)))

	_, _, err := executeCLI(t, "run", "--config", cfg, "--dry-run")

	var connErr *conductor.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 2, connErr.Attempts)
}
