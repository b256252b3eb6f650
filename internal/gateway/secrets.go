package gateway

import (
	"fmt"
	"os"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/ordinalkernel/tradekernel/internal/config"
)

// Credentials is an adapter's exchange API key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// CredentialSource resolves exchange credentials, preferring Vault and
// falling back to environment variables outside production. In
// production an empty Vault token is refused and the env-var fallback is
// never used; the token's value itself is not checked.
type CredentialSource struct {
	vault       *vaultapi.Client
	environment string // "development", "staging", "production"
	mountPath   string
}

// NewCredentialSource builds a source against vaultAddr, or a nil-vault
// source that only reads environment variables when vaultAddr is empty.
func NewCredentialSource(vaultAddr, vaultToken, environment, mountPath string) (*CredentialSource, error) {
	src := &CredentialSource{environment: environment, mountPath: mountPath}
	if vaultAddr == "" {
		return src, nil
	}
	cfg := vaultapi.DefaultConfig()
	cfg.Address = vaultAddr
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: vault client: %w", err)
	}
	if vaultToken == "" && environment == "production" {
		return nil, config.NewKernelError(config.KindConfig, "gateway.NewCredentialSource",
			fmt.Errorf("refusing to start in production without a Vault token"))
	}
	client.SetToken(vaultToken)
	src.vault = client
	return src, nil
}

// Get resolves credentials for exchangeName, trying Vault first (path
// "{mountPath}/{exchangeName}" with keys "api_key"/"secret_key"), then
// environment variables "{EXCHANGE}_API_KEY"/"{EXCHANGE}_SECRET_KEY".
func (s *CredentialSource) Get(exchangeName string) (Credentials, error) {
	if s.vault != nil {
		secret, err := s.vault.Logical().Read(s.mountPath + "/" + exchangeName)
		if err == nil && secret != nil && secret.Data != nil {
			apiKey, _ := secret.Data["api_key"].(string)
			secretKey, _ := secret.Data["secret_key"].(string)
			if apiKey != "" && secretKey != "" {
				return Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
			}
		}
	}
	if s.environment == "production" {
		return Credentials{}, config.NewKernelError(config.KindConfig, "gateway.CredentialSource.Get",
			fmt.Errorf("no Vault secret found for %q in production; refusing env-var fallback", exchangeName))
	}
	prefix := envPrefix(exchangeName)
	return Credentials{
		APIKey:    os.Getenv(prefix + "_API_KEY"),
		SecretKey: os.Getenv(prefix + "_SECRET_KEY"),
	}, nil
}

func envPrefix(exchangeName string) string {
	out := make([]byte, 0, len(exchangeName))
	for _, r := range exchangeName {
		if r >= 'a' && r <= 'z' {
			r -= 32
		}
		out = append(out, byte(r))
	}
	return string(out)
}
