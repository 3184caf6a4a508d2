// Package siwe implements the Sign-In with Ethereum message format (EIP-4361)
// and EIP-191 personal-sign verification. The network extends plain SIWE with
// capability resources; this package only deals with the message itself, the
// capability semantics live in pkg/resources.
package siwe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	headerSuffix = " wants you to sign in with your Ethereum account:"
	// DefaultVersion is the SIWE version String writes when Message.Version is
	// empty. Parse does not check the version field.
	DefaultVersion = "1"
)

// Message is a structured SIWE message.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int
	Nonce          string
	IssuedAt       string
	ExpirationTime string
	Resources      []string
}

// String renders the message in the exact EIP-4361 text form. This text is
// what the wallet signs; producing and re-parsing it must round-trip.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(headerSuffix)
	b.WriteString("\n")
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	version := m.Version
	if version == "" {
		version = DefaultVersion
	}
	b.WriteString(fmt.Sprintf("URI: %s\n", m.URI))
	b.WriteString(fmt.Sprintf("Version: %s\n", version))
	b.WriteString(fmt.Sprintf("Chain ID: %d\n", m.ChainID))
	b.WriteString(fmt.Sprintf("Nonce: %s\n", m.Nonce))
	b.WriteString(fmt.Sprintf("Issued At: %s", m.IssuedAt))
	if m.ExpirationTime != "" {
		b.WriteString(fmt.Sprintf("\nExpiration Time: %s", m.ExpirationTime))
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString(fmt.Sprintf("\n- %s", r))
		}
	}
	return b.String()
}

// Parse reconstructs a Message from its text form.
func Parse(text string) (*Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || !strings.HasSuffix(lines[0], headerSuffix) {
		return nil, fmt.Errorf("not a SIWE message")
	}

	m := &Message{
		Domain:  strings.TrimSuffix(lines[0], headerSuffix),
		Address: lines[1],
	}

	i := 2
	// Skip the blank separator after the address.
	for i < len(lines) && lines[i] == "" {
		i++
	}
	// Everything until the URI field is the statement.
	var statement []string
	for i < len(lines) && !strings.HasPrefix(lines[i], "URI: ") {
		if lines[i] != "" {
			statement = append(statement, lines[i])
		}
		i++
	}
	m.Statement = strings.Join(statement, "\n")

	inResources := false
	for ; i < len(lines); i++ {
		line := lines[i]
		switch {
		case inResources && strings.HasPrefix(line, "- "):
			m.Resources = append(m.Resources, strings.TrimPrefix(line, "- "))
		case line == "Resources:":
			inResources = true
		case strings.HasPrefix(line, "URI: "):
			m.URI = strings.TrimPrefix(line, "URI: ")
		case strings.HasPrefix(line, "Version: "):
			m.Version = strings.TrimPrefix(line, "Version: ")
		case strings.HasPrefix(line, "Chain ID: "):
			chainId, err := strconv.Atoi(strings.TrimPrefix(line, "Chain ID: "))
			if err != nil {
				return nil, fmt.Errorf("invalid chain id: %w", err)
			}
			m.ChainID = chainId
		case strings.HasPrefix(line, "Nonce: "):
			m.Nonce = strings.TrimPrefix(line, "Nonce: ")
		case strings.HasPrefix(line, "Issued At: "):
			m.IssuedAt = strings.TrimPrefix(line, "Issued At: ")
		case strings.HasPrefix(line, "Expiration Time: "):
			m.ExpirationTime = strings.TrimPrefix(line, "Expiration Time: ")
		}
	}

	if m.URI == "" || m.Nonce == "" {
		return nil, fmt.Errorf("SIWE message missing URI or nonce")
	}
	return m, nil
}

// PersonalHash computes the EIP-191 personal-sign digest of a message text.
func PersonalHash(text string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(text), text)
	return crypto.Keccak256([]byte(prefixed))
}

// VerifySignature checks that sigHex is a valid EIP-191 signature of text by
// addressHex. Both 0/1 and 27/28 recovery id encodings are accepted.
func VerifySignature(text string, sigHex string, addressHex string) error {
	sig, err := hexutil.Decode(withHexPrefix(sigHex))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	// go-ethereum expects the recovery id in the 0/1 range.
	recovery := make([]byte, 65)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	pub, err := crypto.SigToPub(PersonalHash(text), recovery)
	if err != nil {
		return fmt.Errorf("failed to recover public key: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(addressHex) {
		return fmt.Errorf("recovered address %s does not match %s", recovered.Hex(), addressHex)
	}
	return nil
}

func withHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}
