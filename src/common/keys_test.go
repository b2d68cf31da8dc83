package common

import (
	"context"
	"errors"
	"testing"

	"nftdrops/src/config"
	"nftdrops/src/types"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	values map[string]string
	asked  []string
}

func (f *fakeSecrets) GetSecret(ctx context.Context, id string) (string, error) {
	f.asked = append(f.asked, id)
	v, ok := f.values[id]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestKeyResolverReadsEnvironment(t *testing.T) {
	project := daoProject(t)
	t.Setenv("PRIVATE_KEY_DAO", "0x"+testKeyHex)
	secrets := &fakeSecrets{}

	key, err := (&KeyResolver{Secrets: secrets}).SigningKey(context.Background(), project)
	require.NoError(t, err)
	want, _ := crypto.HexToECDSA(testKeyHex)
	assert.Equal(t, crypto.PubkeyToAddress(want.PublicKey), crypto.PubkeyToAddress(key.PublicKey))
	assert.Empty(t, secrets.asked)
}

func TestKeyResolverFallsBackToSecretsManager(t *testing.T) {
	project := &config.Project{Name: "Happy Birthday Cakes", SigningKeySecretID: "nft/cakes/key"}
	config.NewCatalog(project)
	t.Setenv(project.SigningKeyVar(), "")
	secrets := &fakeSecrets{values: map[string]string{"nft/cakes/key": testKeyHex + "\n"}}

	key, err := (&KeyResolver{Secrets: secrets}).SigningKey(context.Background(), project)
	require.NoError(t, err)
	assert.NotNil(t, key)
	assert.Equal(t, []string{"nft/cakes/key"}, secrets.asked)
}

func TestKeyResolverMissingKey(t *testing.T) {
	project := daoProject(t)
	t.Setenv("PRIVATE_KEY_DAO", "")
	_, err := (&KeyResolver{}).SigningKey(context.Background(), project)
	assert.True(t, errors.Is(err, types.ErrMissingSigningKey))

	t.Setenv("PRIVATE_KEY_DAO", "not-hex")
	_, err = (&KeyResolver{}).SigningKey(context.Background(), project)
	assert.True(t, errors.Is(err, types.ErrMissingSigningKey))
}
