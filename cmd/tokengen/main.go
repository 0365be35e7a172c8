// Package main generates development credentials for the RekamedChain API:
// bearer tokens for doctors and patients, patient signing keypairs, and
// signatures over consent challenge messages. Tokens use the dev signing key
// unless --signing-key is given and will not work against a production server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "rekamed/internal/jwt_token"
	"rekamed/pkg/crypto/signature"
	id "rekamed/pkg/domain"
)

const (
	// Matches config when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"
	defaultIssuer = "rekamed"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tokengen",
		Short:         "Generate development tokens, keys and consent signatures",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(accessCmd(), keypairCmd(), signCmd())
	return root
}

func accessCmd() *cobra.Command {
	var (
		userID     string
		name       string
		role       string
		ttl        time.Duration
		signingKey string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Issue a bearer token for a doctor or patient",
		Example: `  tokengen access --role doctor --name "dr. Sari"
  tokengen access --role patient --user-id 550e8400-e29b-41d4-a716-446655440000 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid, err := parseOrGenerate(userID)
			if err != nil {
				return err
			}
			r := id.Role(strings.ToLower(role))
			if !r.IsValid() {
				return fmt.Errorf("--role must be doctor or patient, got %q", role)
			}
			svc := jwttoken.NewJWTService(signingKey, defaultIssuer, ttl)
			token, err := svc.GenerateAccessToken(context.Background(), uid, name, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"token":      token,
					"type":       "access_token",
					"expires_in": ttl.String(),
					"claims":     map[string]string{"user_id": uid.String(), "name": name, "role": string(r)},
					"usage":      "Authorization: Bearer <token>",
				})
			}
			fmt.Fprintf(out, "User ID:    %s\nRole:       %s\nExpires In: %s\n\n%s\n", uid, r, ttl, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id (uuid); generated when empty")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().StringVar(&role, "role", string(id.RoleDoctor), "doctor or patient")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	cmd.Flags().StringVar(&signingKey, "signing-key", devSigningKey, "HS256 signing key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func keypairCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "keypair",
		Short: "Generate a secp256k1 keypair for a patient",
		Long: `Generates the key a patient wallet would hold. Register public_key on the
patient and keep private_key to sign consent challenges with "tokengen sign".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := gethcrypto.GenerateKey()
			if err != nil {
				return err
			}
			kp := map[string]string{
				"private_key": "0x" + fmt.Sprintf("%x", gethcrypto.FromECDSA(key)),
				"public_key":  signature.PublicKeyHex(key),
				"address":     gethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, kp)
			}
			fmt.Fprintf(out, "Private Key: %s\nPublic Key:  %s\nAddress:     %s\n", kp["private_key"], kp["public_key"], kp["address"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func signCmd() *cobra.Command {
	var (
		keyHex  string
		message string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a consent challenge message with a patient key",
		Long: `Produces the EIP-191 personal_sign signature the server expects. Pass the
"message" field of GET /consent/challenge/{request_id} with --message, or
pipe it on stdin with --message -.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			msg := message
			if msg == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				msg = strings.TrimRight(string(raw), "\n")
			}
			if msg == "" {
				return fmt.Errorf("--message is required")
			}
			sig, err := signature.Sign(key, []byte(msg))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "patient private key (hex)")
	cmd.Flags().StringVar(&message, "message", "", "challenge message, or - for stdin")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func parseOrGenerate(raw string) (id.UserID, error) {
	if raw == "" {
		return id.UserID(uuid.New()), nil
	}
	uid, err := id.ParseUserID(raw)
	if err != nil {
		return id.UserID{}, fmt.Errorf("--user-id: %w", err)
	}
	return uid, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
