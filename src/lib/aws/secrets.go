package aws

import (
	"context"
	"errors"
	"log"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretFetcher reads plain string secrets from Secrets Manager.
type SecretFetcher struct {
	Client SecretsGetter
}

func NewSecretFetcher(ctx context.Context) (*SecretFetcher, error) {
	c, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &SecretFetcher{Client: secretsmanager.NewFromConfig(c)}, nil
}

func (f *SecretFetcher) GetSecret(ctx context.Context, id string) (string, error) {
	out, err := f.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(id),
	})
	if err != nil {
		log.Printf("[SecretsManager] Error retrieving %s: %s\n", id, err.Error())
		return "", err
	}
	if out.SecretString == nil {
		return "", errors.New("secret has no string value")
	}
	return *out.SecretString, nil
}
