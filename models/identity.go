package models

import (
	"encoding/json"
	"fmt"
)

// Tier represents a privilege level. Tiers are totally ordered: a higher
// tier holds every privilege of the tiers below it.
type Tier int

const (
	TierAnonymous Tier = iota
	TierSeed
	TierFlower
	TierNectar
	TierAdmin
)

// tierNames maps tiers to their wire labels, in ascending order
var tierNames = [...]string{
	TierAnonymous: "anonymous",
	TierSeed:      "seed",
	TierFlower:    "flower",
	TierNectar:    "nectar",
	TierAdmin:     "admin",
}

// String returns the wire label for the tier
func (t Tier) String() string {
	if t < TierAnonymous || int(t) >= len(tierNames) {
		return "anonymous"
	}
	return tierNames[t]
}

// AtLeast reports whether t grants the privileges of other
func (t Tier) AtLeast(other Tier) bool {
	return t >= other
}

// ParseTier maps a wire label to a Tier. Unknown labels resolve to
// TierAnonymous with ok=false so a garbled trust-service payload can never
// grant privileges.
func ParseTier(label string) (Tier, bool) {
	for i, name := range tierNames {
		if name == label {
			return Tier(i), true
		}
	}
	return TierAnonymous, false
}

// MarshalJSON encodes the tier as its wire label
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier from its wire label
func (t *Tier) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("tier must be a string: %w", err)
	}
	parsed, _ := ParseTier(label)
	*t = parsed
	return nil
}

// Identity is who a request turned out to be. It is produced only by a
// successful trust-service lookup or by AnonymousIdentity; nothing in the
// gateway constructs one from unverified input.
type Identity struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Tier     Tier   `json:"tier"`
}

// AnonymousIdentity returns the lowest-privilege identity
func AnonymousIdentity() Identity {
	return Identity{Tier: TierAnonymous}
}
