package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/sync/singleflight"
)

// SecretsAPI is the subset of the Secrets Manager client used by SecretsClient.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient fetches secrets once per process. Concurrent lookups of the same name
// share one API call.
type SecretsClient struct {
	client SecretsAPI
	group  singleflight.Group
	cache  sync.Map
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return NewSecretsClientWithAPI(secretsmanager.NewFromConfig(cfg))
}

func NewSecretsClientWithAPI(api SecretsAPI) *SecretsClient {
	return &SecretsClient{client: api}
}

// GetSecret returns the string value of the secret called name.
func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := s.cache.Load(name); ok {
		return v.(string), nil
	}

	v, err, _ := s.group.Do(name, func() (interface{}, error) {
		out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
		if err != nil {
			return nil, fmt.Errorf("get secret %s: %w", name, err)
		}
		if out.SecretString == nil {
			return nil, fmt.Errorf("secret %s has no string value", name)
		}
		s.cache.Store(name, *out.SecretString)
		return *out.SecretString, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetSecretMap fetches a secret holding a flat JSON object.
func (s *SecretsClient) GetSecretMap(ctx context.Context, name string) (map[string]string, error) {
	raw, err := s.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	return m, nil
}
