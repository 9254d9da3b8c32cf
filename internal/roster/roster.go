// Package roster classifies resolved WAN addresses against the configured
// primary address and its labelled alternates.
package roster

import (
	"errors"
	"fmt"
	"net/netip"
)

// UnknownLabel is reported for addresses that are not part of the roster.
const UnknownLabel = "Dynamic/Unknown IP"

var (
	ErrInvalidAddress   = errors.New("invalid IP address")
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrLabelCount       = errors.New("label count must equal secondaries + 1")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPrimary
	KindSecondary
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Entry is a known alternate address and its human label.
type Entry struct {
	Address string
	Label   string
}

// Roster is immutable after New.
type Roster struct {
	primary      string
	primaryLabel string
	secondaries  []Entry
}

// Classification is the result of Classify. Index is the position in the
// secondaries list and is only meaningful for KindSecondary.
type Classification struct {
	Kind  Kind
	Label string
	Index int
}

// New builds a roster. labels[0] belongs to the primary address and the rest
// follow the order of secondaries.
func New(primary string, secondaries []string, labels []string) (*Roster, error) {
	if !ValidIP(primary) {
		return nil, fmt.Errorf("primary %q: %w", primary, ErrInvalidAddress)
	}
	if len(labels) != len(secondaries)+1 {
		return nil, fmt.Errorf("%w (labels=%d secondaries=%d)", ErrLabelCount, len(labels), len(secondaries))
	}

	seen := map[string]struct{}{primary: {}}
	entries := make([]Entry, 0, len(secondaries))
	for i, addr := range secondaries {
		if !ValidIP(addr) {
			return nil, fmt.Errorf("secondary %q: %w", addr, ErrInvalidAddress)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
		}
		seen[addr] = struct{}{}
		entries = append(entries, Entry{Address: addr, Label: labels[i+1]})
	}

	return &Roster{
		primary:      primary,
		primaryLabel: labels[0],
		secondaries:  entries,
	}, nil
}

func (r *Roster) Primary() string { return r.primary }

func (r *Roster) PrimaryLabel() string { return r.primaryLabel }

// Secondaries returns a copy of the ordered alternates.
func (r *Roster) Secondaries() []Entry {
	out := make([]Entry, len(r.secondaries))
	copy(out, r.secondaries)
	return out
}

// IsPrimary reports whether ip is exactly the primary address.
func (r *Roster) IsPrimary(ip string) bool {
	return ip == r.primary
}

// Classify maps ip onto the roster. The first matching secondary wins.
func (r *Roster) Classify(ip string) Classification {
	if ip == r.primary {
		return Classification{Kind: KindPrimary, Label: r.primaryLabel}
	}
	for i, e := range r.secondaries {
		if e.Address == ip {
			return Classification{Kind: KindSecondary, Label: e.Label, Index: i}
		}
	}
	return Classification{Kind: KindUnknown, Label: UnknownLabel}
}

// Describe renders the classification for change messages.
func (c Classification) Describe(ip string) string {
	if c.Kind == KindUnknown {
		return UnknownLabel
	}
	return ip + " : " + c.Label
}

// ValidIP reports whether s is a syntactically valid IPv4 or IPv6 address.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
