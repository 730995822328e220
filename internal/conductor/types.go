package conductor

import "fmt"

// StatusKind names an application status without its payload. It is
// also the value of the list_apps status filter.
type StatusKind string

const (
	StatusRunning           StatusKind = "running"
	StatusPaused            StatusKind = "paused"
	StatusDisabled          StatusKind = "disabled"
	StatusAwaitingMemproofs StatusKind = "awaiting_memproofs"
)

func (k StatusKind) Valid() bool {
	switch k {
	case StatusRunning, StatusPaused, StatusDisabled, StatusAwaitingMemproofs:
		return true
	}
	return false
}

// AppStatus is a point-in-time snapshot of one installed app. Reason is
// only populated for paused and disabled apps.
type AppStatus struct {
	Kind   StatusKind `cbor:"type" json:"type"`
	Reason string     `cbor:"reason,omitempty" json:"reason,omitempty"`
}

func Running() AppStatus { return AppStatus{Kind: StatusRunning} }

func Paused(reason string) AppStatus { return AppStatus{Kind: StatusPaused, Reason: reason} }

func Disabled(reason string) AppStatus { return AppStatus{Kind: StatusDisabled, Reason: reason} }

func AwaitingMemproofs() AppStatus { return AppStatus{Kind: StatusAwaitingMemproofs} }

func (s AppStatus) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
}

// CellID addresses one cell of an installed app: the DNA it runs and the
// agent that runs it.
type CellID struct {
	DnaHash     []byte `cbor:"dna_hash"`
	AgentPubKey []byte `cbor:"agent_pub_key"`
}

type AppInfo struct {
	InstalledAppID string    `cbor:"installed_app_id"`
	Status         AppStatus `cbor:"status"`
	Cells          []CellID  `cbor:"cells"`
}

// ZomeCall is a single function invocation against one cell.
type ZomeCall struct {
	CellID     CellID `cbor:"cell_id"`
	ZomeName   string `cbor:"zome_name"`
	FnName     string `cbor:"fn_name"`
	Payload    []byte `cbor:"payload"`
	CapSecret  []byte `cbor:"cap_secret,omitempty"`
	Provenance []byte `cbor:"provenance"`
}
