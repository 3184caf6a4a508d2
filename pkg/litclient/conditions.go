package litclient

import (
	"encoding/json"

	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
)

// ReturnValueTest is the predicate applied to a condition's lookup result.
type ReturnValueTest struct {
	Comparator string `json:"comparator"`
	Value      string `json:"value"`
}

// AccessControlCondition is one predicate of the basic condition language:
// a contract (or wallet) lookup on a chain compared against a value.
type AccessControlCondition struct {
	ContractAddress      string          `json:"contractAddress"`
	StandardContractType string          `json:"standardContractType"`
	Chain                string          `json:"chain"`
	Method               string          `json:"method"`
	Parameters           []string        `json:"parameters"`
	ReturnValueTest      ReturnValueTest `json:"returnValueTest"`
}

// ConditionSet carries exactly one of the condition languages the nodes
// evaluate. The raw variants are forwarded opaquely.
type ConditionSet struct {
	AccessControlConditions        []AccessControlCondition `json:"accessControlConditions,omitempty"`
	EvmContractConditions          json.RawMessage          `json:"evmContractConditions,omitempty"`
	SolRpcConditions               json.RawMessage          `json:"solRpcConditions,omitempty"`
	UnifiedAccessControlConditions json.RawMessage          `json:"unifiedAccessControlConditions,omitempty"`
}

// Validate checks that exactly one condition language is populated.
func (cs *ConditionSet) Validate() error {
	populated := 0
	if len(cs.AccessControlConditions) > 0 {
		populated++
	}
	if len(cs.EvmContractConditions) > 0 {
		populated++
	}
	if len(cs.SolRpcConditions) > 0 {
		populated++
	}
	if len(cs.UnifiedAccessControlConditions) > 0 {
		populated++
	}
	if populated != 1 {
		return literrors.New(literrors.KindInvalidArgumentException,
			"exactly one condition set is required, got %d", populated)
	}
	return nil
}

// Hash returns the lowercase hex SHA-256 of the canonical serialisation of
// the populated condition set. Both sides of an encrypt/decrypt pair must
// produce identical bytes here.
func (cs *ConditionSet) Hash() (string, error) {
	if err := cs.Validate(); err != nil {
		return "", err
	}
	var subject any
	switch {
	case len(cs.AccessControlConditions) > 0:
		subject = cs.AccessControlConditions
	case len(cs.EvmContractConditions) > 0:
		subject = cs.EvmContractConditions
	case len(cs.SolRpcConditions) > 0:
		subject = cs.SolRpcConditions
	default:
		subject = cs.UnifiedAccessControlConditions
	}
	canonical, err := util.CanonicalJSON(subject)
	if err != nil {
		return "", literrors.Wrap(err, literrors.KindInvalidParamType, "conditions are not JSON-serialisable")
	}
	return thresholdCrypto.Sha256Hex(canonical), nil
}

// bodyFields returns the condition set as request body fields for the nodes.
func (cs *ConditionSet) bodyFields() map[string]any {
	out := map[string]any{}
	if len(cs.AccessControlConditions) > 0 {
		out["accessControlConditions"] = cs.AccessControlConditions
	}
	if len(cs.EvmContractConditions) > 0 {
		out["evmContractConditions"] = cs.EvmContractConditions
	}
	if len(cs.SolRpcConditions) > 0 {
		out["solRpcConditions"] = cs.SolRpcConditions
	}
	if len(cs.UnifiedAccessControlConditions) > 0 {
		out["unifiedAccessControlConditions"] = cs.UnifiedAccessControlConditions
	}
	return out
}
