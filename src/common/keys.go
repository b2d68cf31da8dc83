package common

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"strings"

	"nftdrops/src/config"
	"nftdrops/src/types"

	"github.com/ethereum/go-ethereum/crypto"
)

type SecretSource interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// KeySource returns the key that signs distributions for a project.
type KeySource interface {
	SigningKey(ctx context.Context, project *config.Project) (*ecdsa.PrivateKey, error)
}

// KeyResolver reads PRIVATE_KEY_<PROJECT> and falls back to the project's
// Secrets Manager entry.
type KeyResolver struct {
	Secrets SecretSource
}

func (k *KeyResolver) SigningKey(ctx context.Context, project *config.Project) (*ecdsa.PrivateKey, error) {
	raw := os.Getenv(project.SigningKeyVar())
	if raw == "" && project.SigningKeySecretID != "" && k.Secrets != nil {
		secret, err := k.Secrets.GetSecret(ctx, project.SigningKeySecretID)
		if err != nil {
			log.Printf("[keys] Could not read signing key of %s: %s\n", project.Name, err.Error())
		} else {
			raw = secret
		}
	}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%w: %s", types.ErrMissingSigningKey, project.Name)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key is malformed", types.ErrMissingSigningKey, project.Name)
	}
	return key, nil
}
