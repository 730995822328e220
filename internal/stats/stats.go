// Package stats assembles the signed report a host sends upstream.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"holoport-stats/internal/inventory"
	"holoport-stats/internal/system"
)

// Stats is the report body. Absent values serialize as null so the
// receiver always sees the full field set.
type Stats struct {
	HoloNetwork    *string             `json:"holoNetwork"`
	Channel        *string             `json:"channel"`
	ChannelVersion *string             `json:"channelVersion"`
	HoloportModel  *string             `json:"holoportModel"`
	SSHStatus      *bool               `json:"sshStatus"`
	ZtIP           *string             `json:"ztIp"`
	WanIP          *string             `json:"wanIp"`
	HoloportID     *string             `json:"holoportId"`
	Timestamp      *int64              `json:"timestamp"`
	HposAppList    inventory.HealthMap `json:"hposAppList"`
	RunningApps    *inventory.Buckets  `json:"runningApps"`
	HappUsage      map[string]int      `json:"happUsage"`
}

func New(facts system.Facts, holoportID string, at time.Time) *Stats {
	ts := at.Unix()
	return &Stats{
		HoloNetwork:    facts.HoloNetwork,
		Channel:        facts.Channel,
		ChannelVersion: facts.ChannelVersion,
		HoloportModel:  facts.HoloportModel,
		SSHStatus:      facts.SSHEnabled,
		ZtIP:           facts.ZeroTierIP,
		WanIP:          facts.WANIP,
		HoloportID:     &holoportID,
		Timestamp:      &ts,
	}
}

// Bytes is the exact serialization that gets signed and sent.
func (s *Stats) Bytes() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding stats payload: %w", err)
	}
	return b, nil
}

type Signer interface {
	Sign(payload []byte) (string, error)
	PublicID() string
}

// Report is a payload together with the signature over exactly those
// bytes.
type Report struct {
	Signature  string
	Payload    []byte
	HoloportID string
}

var ErrUnsigned = errors.New("report has no signature")

func (r Report) Validate() error {
	if r.Signature == "" {
		return ErrUnsigned
	}
	if len(r.Payload) == 0 {
		return errors.New("report has no payload")
	}
	return nil
}

// Sign serializes s once and signs those bytes.
func (s *Stats) Sign(signer Signer) (Report, error) {
	payload, err := s.Bytes()
	if err != nil {
		return Report{}, err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return Report{}, err
	}
	return Report{Signature: signature, Payload: payload, HoloportID: signer.PublicID()}, nil
}
