package combiner

// NodeShare is one node's response to a sign or execute call.
type NodeShare struct {
	Success        bool                       `json:"success"`
	SignedData     map[string]SignedDataShare `json:"signedData,omitempty"`
	ClaimData      map[string]ClaimDataShare  `json:"claimData,omitempty"`
	Response       string                     `json:"response,omitempty"`
	Logs           string                     `json:"logs,omitempty"`
	SignatureShare string                     `json:"signatureShare,omitempty"`
	ShareIndex     uint64                     `json:"shareIndex"`
	CurveType      string                     `json:"curveType,omitempty"`
	DataSigned     string                     `json:"dataSigned,omitempty"`
	BlsRootPubkey  string                     `json:"blsRootPubkey,omitempty"`
	SiweMessage    string                     `json:"siweMessage,omitempty"`
	UnsignedJwt    string                     `json:"unsignedJwt,omitempty"`
	Result         string                     `json:"result,omitempty"`
}

// SignedDataShare is one node's ECDSA share for one named signature produced
// inside an action or a pkpSign call.
type SignedDataShare struct {
	SigType        string `json:"sigType"`
	DataSigned     string `json:"dataSigned"`
	SignatureShare string `json:"signatureShare"`
	ShareIndex     uint64 `json:"shareIndex"`
	BigR           string `json:"bigR"`
	PublicKey      string `json:"publicKey"`
}

// ClaimDataShare is one node's attestation of a derived key claim.
type ClaimDataShare struct {
	Signature    string `json:"signature"`
	DerivedKeyId string `json:"derivedKeyId"`
}

// Curve type tags used by the nodes.
const (
	CurveTypeBLS  = "BLS"
	CurveTypeK256 = "K256"
)
