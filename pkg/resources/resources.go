// Package resources models the capability system of the network: the resource
// identifiers an authorisation can name, the abilities it can grant over them,
// and the ReCap capability object that rides inside a SIWE message as a single
// encoded resource URI.
package resources

import "fmt"

// Ability is an action a capability can grant over a resource.
type Ability string

const (
	AbilityPKPSigning                       Ability = "pkp-signing"
	AbilityLitActionExecution               Ability = "lit-action-execution"
	AbilityAccessControlConditionSigning    Ability = "access-control-condition-signing"
	AbilityAccessControlConditionDecryption Ability = "access-control-condition-decryption"
	// AbilityWildcard grants every ability for the resource it is attached to.
	AbilityWildcard Ability = "*"
)

// Resource URI prefixes. A resource key is always "<prefix>://<id>".
const (
	PKPResourcePrefix                    = "lit-pkp"
	ActionResourcePrefix                 = "lit-litaction"
	AccessControlConditionResourcePrefix = "lit-accesscontrolcondition"
	// WildcardResourceID matches every id under a prefix.
	WildcardResourceID = "*"
)

// LitResource identifies a single resource on the network.
type LitResource struct {
	// Prefix is the resource family, e.g. "lit-pkp"
	Prefix string `json:"resourcePrefix"`
	// ID is the resource identifier within the family, or "*"
	ID string `json:"resource"`
}

// NewPKPResource creates a resource naming a PKP by its token id, or all PKPs
// when id is "*".
func NewPKPResource(id string) LitResource {
	return LitResource{Prefix: PKPResourcePrefix, ID: id}
}

// NewActionResource creates a resource naming an action by its IPFS id, or all
// actions when id is "*".
func NewActionResource(id string) LitResource {
	return LitResource{Prefix: ActionResourcePrefix, ID: id}
}

// NewAccessControlConditionResource creates a resource naming an access
// control condition set by its identity parameter body, or all condition sets
// when id is "*".
func NewAccessControlConditionResource(id string) LitResource {
	return LitResource{Prefix: AccessControlConditionResourcePrefix, ID: id}
}

// Key returns the canonical resource key "<prefix>://<id>".
func (r LitResource) Key() string {
	return fmt.Sprintf("%s://%s", r.Prefix, r.ID)
}

// ResourceAbilityRequest is one (resource, ability) pair demanded by a call
// site. Session signing templates carry the full list of requests a session is
// allowed to use.
type ResourceAbilityRequest struct {
	Resource LitResource `json:"resource"`
	Ability  Ability     `json:"ability"`
}
