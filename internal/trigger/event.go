// Package trigger turns pushes, schedule ticks and manual invocations into
// run requests, and hosts the long-running serve mode.
package trigger

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindPush     Kind = "push"
	KindSchedule Kind = "schedule"
	KindManual   Kind = "manual"
)

// ParseKind accepts push, schedule and manual (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPush, KindSchedule, KindManual:
		return k, nil
	case "":
		return KindManual, nil
	default:
		return "", fmt.Errorf("unsupported trigger: %q (must be one of: push, schedule, manual)", s)
	}
}

// Event is one occurrence that starts a run.
type Event struct {
	Kind Kind `json:"kind"`

	// Ref is the pushed ref (refs/heads/main) for push events.
	Ref string `json:"ref,omitempty"`

	// Revision is the commit to check out. Empty means the branch head.
	Revision string `json:"revision,omitempty"`

	// Delivery is the webhook delivery ID, when the event came over HTTP.
	Delivery string `json:"delivery,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// NewEvent returns an event of kind k stamped with the current time.
func NewEvent(k Kind, revision string) Event {
	return Event{Kind: k, Revision: strings.TrimSpace(revision), ReceivedAt: time.Now().UTC()}
}

func (e Event) String() string {
	s := string(e.Kind)
	if e.Revision != "" {
		rev := e.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		s += "@" + rev
	}
	return s
}
