package resources

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lit-protocol/lit-go-sdk/pkg/util"
)

// SiweResourceScheme is the URN scheme carrying an encoded capability object
// inside a SIWE resource list.
const SiweResourceScheme = "urn:recap:"

// CapabilityObject is a collection of (resource, ability) grants. It encodes
// to exactly one SIWE resource URI whose body is the base64url of the
// canonical JSON attenuation set, and survives an encode/decode round trip.
type CapabilityObject struct {
	// grants maps a canonical resource key to the set of granted abilities
	grants map[string]map[Ability]struct{}
}

// NewCapabilityObject creates an empty capability object.
func NewCapabilityObject() *CapabilityObject {
	return &CapabilityObject{
		grants: make(map[string]map[Ability]struct{}),
	}
}

// AddCapability grants ability over resource.
func (c *CapabilityObject) AddCapability(resource LitResource, ability Ability) {
	key := resource.Key()
	if _, ok := c.grants[key]; !ok {
		c.grants[key] = make(map[Ability]struct{})
	}
	c.grants[key][ability] = struct{}{}
}

// AddAllCapabilitiesForResource grants the wildcard ability over resource.
func (c *CapabilityObject) AddAllCapabilitiesForResource(resource LitResource) {
	c.AddCapability(resource, AbilityWildcard)
}

// VerifyCapabilitiesForResource reports whether the object grants ability over
// resource, either through an exact grant or through a wildcard grant. A grant
// for "<prefix>://*" covers every id under that prefix; the wildcard ability
// covers every ability for its resource.
func (c *CapabilityObject) VerifyCapabilitiesForResource(resource LitResource, ability Ability) bool {
	candidates := []string{
		resource.Key(),
		LitResource{Prefix: resource.Prefix, ID: WildcardResourceID}.Key(),
	}
	for _, key := range candidates {
		abilities, ok := c.grants[key]
		if !ok {
			continue
		}
		if _, ok := abilities[AbilityWildcard]; ok {
			return true
		}
		if _, ok := abilities[ability]; ok {
			return true
		}
	}
	return false
}

// ResourceKeys returns the granted resource keys in canonical (sorted) order.
func (c *CapabilityObject) ResourceKeys() []string {
	keys := make([]string, 0, len(c.grants))
	for key := range c.grants {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// attenuation is the ReCap wire shape: resource key -> ability -> caveat list.
type attenuation struct {
	Att map[string]map[string][]map[string]any `json:"att"`
	Prf []string                               `json:"prf"`
}

func (c *CapabilityObject) toAttenuation() *attenuation {
	att := make(map[string]map[string][]map[string]any, len(c.grants))
	for key, abilities := range c.grants {
		entry := make(map[string][]map[string]any, len(abilities))
		for ability := range abilities {
			entry[string(ability)] = []map[string]any{{}}
		}
		att[key] = entry
	}
	return &attenuation{Att: att, Prf: []string{}}
}

// EncodeAsSiweResource serialises the capability object into a single SIWE
// resource URI: "urn:recap:" followed by the base64url (unpadded) canonical
// JSON of the attenuation set.
func (c *CapabilityObject) EncodeAsSiweResource() (string, error) {
	canonical, err := util.CanonicalJSON(c.toAttenuation())
	if err != nil {
		return "", fmt.Errorf("failed to canonicalise capability object: %w", err)
	}
	return SiweResourceScheme + base64.RawURLEncoding.EncodeToString(canonical), nil
}

// DecodeSiweResource parses a URI produced by EncodeAsSiweResource back into a
// capability object.
func DecodeSiweResource(uri string) (*CapabilityObject, error) {
	if !strings.HasPrefix(uri, SiweResourceScheme) {
		return nil, fmt.Errorf("resource URI %q does not carry the %q scheme", uri, SiweResourceScheme)
	}
	body, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(uri, SiweResourceScheme))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resource URI body: %w", err)
	}
	var att attenuation
	if err := json.Unmarshal(body, &att); err != nil {
		return nil, fmt.Errorf("failed to parse attenuation set: %w", err)
	}

	obj := NewCapabilityObject()
	for key, abilities := range att.Att {
		for ability := range abilities {
			obj.grants[key] = appendAbility(obj.grants[key], Ability(ability))
		}
	}
	return obj, nil
}

func appendAbility(set map[Ability]struct{}, ability Ability) map[Ability]struct{} {
	if set == nil {
		set = make(map[Ability]struct{})
	}
	set[ability] = struct{}{}
	return set
}

// Statement renders the human-readable SIWE statement describing the grants.
// An empty capability object produces an empty statement.
func (c *CapabilityObject) Statement() string {
	if len(c.grants) == 0 {
		return ""
	}
	var parts []string
	for _, key := range c.ResourceKeys() {
		abilities := make([]string, 0, len(c.grants[key]))
		for ability := range c.grants[key] {
			abilities = append(abilities, string(ability))
		}
		sort.Strings(abilities)
		for _, ability := range abilities {
			parts = append(parts, fmt.Sprintf("'%s' for '%s'", ability, key))
		}
	}
	return "I further authorize the stated URI to perform the following actions on my behalf: " +
		strings.Join(parts, ", ") + "."
}

// Equal reports whether two capability objects grant the same capabilities.
func (c *CapabilityObject) Equal(other *CapabilityObject) bool {
	a, err := c.EncodeAsSiweResource()
	if err != nil {
		return false
	}
	b, err := other.EncodeAsSiweResource()
	if err != nil {
		return false
	}
	return a == b
}
