package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/chainManager"
	"github.com/lit-protocol/lit-go-sdk/pkg/litclient"
	"github.com/lit-protocol/lit-go-sdk/pkg/logger"
	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
	"github.com/lit-protocol/lit-go-sdk/pkg/siwe"
	"github.com/lit-protocol/lit-go-sdk/pkg/storage"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "litcli",
		Usage: "Threshold network client",
		Description: `litcli drives the client-side coordinator of the threshold signing
network: it mints capability-scoped session signatures, runs actions, requests
threshold ECDSA signatures and encrypts or decrypts data against access
control conditions.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringSliceFlag{
				Name:     "nodes",
				Aliases:  []string{"n"},
				Usage:    "Bootstrap node URLs",
				Required: true,
				EnvVars:  []string{"LIT_NODES"},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Ethereum RPC URL used for the SIWE nonce (falls back to the handshake blockhash)",
				EnvVars: []string{"RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "wallet-private-key",
				Usage:   "Private key for signing the session delegation (hex format, with or without 0x prefix)",
				EnvVars: []string{"WALLET_PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Subnet name forwarded to mint relays",
				Value:   "devnet",
				EnvVars: []string{"LIT_NETWORK"},
			},
			&cli.StringFlag{
				Name:    "relay-url",
				Usage:   "Mint relay URL for claimed keys",
				EnvVars: []string{"LIT_RELAY_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "handshake",
				Usage:  "Connect to the network and print the connection snapshot",
				Action: handshakeAction,
			},
			{
				Name:  "execute",
				Usage: "Run an action on the committee",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "code", Usage: "Action source code"},
					&cli.StringFlag{Name: "ipfs-id", Usage: "IPFS id of a pinned action"},
					&cli.StringFlag{Name: "js-params", Usage: "Action parameters as JSON"},
					&cli.IntFlag{Name: "target-nodes", Usage: "Run on this many deterministically selected nodes"},
				},
				Action: executeAction,
			},
			{
				Name:  "pkp-sign",
				Usage: "Threshold-sign a message digest under a PKP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pubkey", Usage: "PKP public key (hex)", Required: true},
					&cli.StringFlag{Name: "message", Usage: "Message to hash and sign", Required: true},
				},
				Action: pkpSignAction,
			},
			{
				Name:  "encrypt",
				Usage: "Encrypt data bound to access control conditions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "data", Usage: "Plaintext to encrypt", Required: true},
					&cli.StringFlag{Name: "conditions", Usage: "Access control conditions as JSON", Required: true},
				},
				Action: encryptAction,
			},
			{
				Name:  "decrypt",
				Usage: "Request threshold decryption of a ciphertext",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ciphertext", Usage: "Base64 ciphertext", Required: true},
					&cli.StringFlag{Name: "data-hash", Usage: "SHA-256 of the plaintext (hex)", Required: true},
					&cli.StringFlag{Name: "conditions", Usage: "Access control conditions as JSON", Required: true},
					&cli.StringFlag{Name: "chain", Usage: "Chain the conditions are evaluated on", Value: "ethereum"},
				},
				Action: decryptAction,
			},
			{
				Name:  "claim",
				Usage: "Claim a derived key from an auth method proof",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "auth-method-type", Usage: "Auth method type tag", Value: auth.AuthMethodTypeEthWallet},
					&cli.StringFlag{Name: "access-token", Usage: "Auth method proof", Required: true},
				},
				Action: claimAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func connectClient(c *cli.Context) (*litclient.LitNodeClient, *zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var chain chainManager.IChainManager
	if rpcUrl := c.String("rpc-url"); rpcUrl != "" {
		cm, err := chainManager.NewChainManager(&chainManager.ChainConfig{
			RPCUrl:   rpcUrl,
			CacheTTL: 30 * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to RPC: %w", err)
		}
		chain = cm
	}

	client, err := litclient.NewLitNodeClient(&litclient.LitNodeClientConfig{
		BootstrapUrls: c.StringSlice("nodes"),
		Network:       c.String("network"),
		RelayUrl:      c.String("relay-url"),
	}, storage.NewInMemoryAdapter(), chain, l)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(c.Context); err != nil {
		return nil, nil, err
	}
	return client, l, nil
}

// walletCallback signs the session delegation SIWE with the configured
// private key.
func walletCallback(key *ecdsa.PrivateKey) auth.AuthNeededCallback {
	return func(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
		address := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
		message := &siwe.Message{
			Domain:         "litcli",
			Address:        address,
			Statement:      params.Statement,
			URI:            params.URI,
			Version:        siwe.DefaultVersion,
			ChainID:        1,
			Nonce:          params.Nonce,
			IssuedAt:       time.Now().UTC().Format(time.RFC3339),
			ExpirationTime: params.Expiration,
			Resources:      params.Resources,
		}
		text := message.String()
		sig, err := ethcrypto.Sign(siwe.PersonalHash(text), key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign SIWE message: %w", err)
		}
		return &auth.AuthSig{
			Sig:           hexutil.Encode(sig),
			DerivedVia:    auth.DerivedViaEthWallet,
			SignedMessage: text,
			Address:       address,
		}, nil
	}
}

func sessionSigs(c *cli.Context, client *litclient.LitNodeClient) (litclient.SessionSigsMap, error) {
	keyHex := c.String("wallet-private-key")
	if keyHex == "" {
		return nil, fmt.Errorf("--wallet-private-key is required for this command")
	}
	key, err := ethcrypto.HexToECDSA(stripHexPrefix(keyHex))
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet private key: %w", err)
	}

	return client.GetSessionSigs(c.Context, &litclient.GetSessionSigsParams{
		Chain: "ethereum",
		ResourceAbilityRequests: []resources.ResourceAbilityRequest{
			{Resource: resources.NewPKPResource("*"), Ability: resources.AbilityPKPSigning},
			{Resource: resources.NewActionResource("*"), Ability: resources.AbilityLitActionExecution},
			{Resource: resources.NewAccessControlConditionResource("*"), Ability: resources.AbilityAccessControlConditionDecryption},
			{Resource: resources.NewAccessControlConditionResource("*"), Ability: resources.AbilityAccessControlConditionSigning},
		},
		AuthNeededCallback: walletCallback(key),
	})
}

func handshakeAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	return printJSON(client.Connection())
}

func executeAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	sigs, err := sessionSigs(c, client)
	if err != nil {
		return err
	}

	var jsParams map[string]any
	if raw := c.String("js-params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &jsParams); err != nil {
			return fmt.Errorf("failed to parse --js-params: %w", err)
		}
	}

	result, err := client.ExecuteJs(c.Context, &litclient.ExecuteJsParams{
		Code:            c.String("code"),
		IpfsId:          c.String("ipfs-id"),
		JsParams:        jsParams,
		SessionSigs:     sigs,
		TargetNodeRange: c.Int("target-nodes"),
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func pkpSignAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	sigs, err := sessionSigs(c, client)
	if err != nil {
		return err
	}

	digest := sha256.Sum256([]byte(c.String("message")))
	sig, err := client.PkpSign(c.Context, &litclient.PkpSignParams{
		ToSign:      digest[:],
		PubKey:      c.String("pubkey"),
		SessionSigs: sigs,
	})
	if err != nil {
		return err
	}
	return printJSON(sig)
}

func parseConditions(raw string) (litclient.ConditionSet, error) {
	var conditions []litclient.AccessControlCondition
	if err := json.Unmarshal([]byte(raw), &conditions); err != nil {
		return litclient.ConditionSet{}, fmt.Errorf("failed to parse --conditions: %w", err)
	}
	return litclient.ConditionSet{AccessControlConditions: conditions}, nil
}

func encryptAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	conditions, err := parseConditions(c.String("conditions"))
	if err != nil {
		return err
	}
	result, err := client.Encrypt(c.Context, &litclient.EncryptParams{
		DataToEncrypt: []byte(c.String("data")),
		Conditions:    conditions,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func decryptAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	sigs, err := sessionSigs(c, client)
	if err != nil {
		return err
	}
	conditions, err := parseConditions(c.String("conditions"))
	if err != nil {
		return err
	}
	plaintext, err := client.Decrypt(c.Context, &litclient.DecryptParams{
		Ciphertext:        c.String("ciphertext"),
		DataToEncryptHash: c.String("data-hash"),
		Conditions:        conditions,
		Chain:             c.String("chain"),
		SessionSigs:       sigs,
	})
	if err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(plaintext))
	return nil
}

func claimAction(c *cli.Context) error {
	client, _, err := connectClient(c)
	if err != nil {
		return err
	}
	result, err := client.ClaimKeyId(c.Context, &litclient.ClaimKeyIdParams{
		AuthMethod: auth.AuthMethod{
			AuthMethodType: c.Int("auth-method-type"),
			AccessToken:    c.String("access-token"),
		},
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
