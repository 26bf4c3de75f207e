// internal/infra/aws/secrets.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"payment_reminder/internal/domain/secrets"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsClient is the subset of the Secrets Manager API in use.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
}

// SecretStore keeps the secret bundle as one JSON string secret.
type SecretStore struct {
	client SecretsClient
	id     string
}

func NewSecretStore(client SecretsClient, secretID string) *SecretStore {
	return &SecretStore{client: client, id: secretID}
}

func (s *SecretStore) Get(ctx context.Context) (secrets.Raw, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(s.id)})
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", s.id)
	}
	var raw secrets.Raw
	if err := json.Unmarshal([]byte(*out.SecretString), &raw); err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	return raw, nil
}

func (s *SecretStore) Put(ctx context.Context, raw secrets.Raw) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode secret: %w", err)
	}
	_, err = s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     sdkaws.String(s.id),
		SecretString: sdkaws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return nil
}
