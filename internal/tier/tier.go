// Package tier defines the ordered access-tier enumeration that gates
// knowledge chunk visibility.
//
// Tiers form a total order: public < acquaintance < colleague < family.
// A viewer may see a chunk iff the viewer's tier meets or exceeds the
// chunk's minimum tier.
package tier

import "fmt"

// Tier is an access level. The zero value is Public.
type Tier int

const (
	Public Tier = iota
	Acquaintance
	Colleague
	Family
)

// names holds wire-visible tier identifiers in rank order.
var names = [...]string{"public", "acquaintance", "colleague", "family"}

// String returns the wire-visible identifier for t.
func (t Tier) String() string {
	if t < Public || t > Family {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return names[t]
}

// Level returns the numeric rank of t, matching the tier_level SQL function.
func (t Tier) Level() int { return int(t) }

// Allows reports whether a viewer at tier t may see content gated at min.
func (t Tier) Allows(min Tier) bool { return t >= min }

// Valid reports whether t names a defined tier.
func (t Tier) Valid() bool { return t >= Public && t <= Family }

// Parse converts a wire identifier to a Tier.
func Parse(s string) (Tier, error) {
	for i, name := range names {
		if s == name {
			return Tier(i), nil
		}
	}
	return Public, fmt.Errorf("unknown access tier %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid access tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
