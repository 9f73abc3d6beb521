package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

type SecretManager struct {
	client *api.Client
	path   string
}

// NewSecretManager connects to Vault. path is the KV v2 data path holding the
// service secrets, e.g. "secret/data/csms".
func NewSecretManager(address, token, path string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)
	if path == "" {
		path = "secret/data/csms"
	}

	return &SecretManager{client: client, path: path}, nil
}

func (sm *SecretManager) GetDatabaseURL() (string, error) {
	return sm.read("database_url")
}

func (sm *SecretManager) GetJWTSecret() (string, error) {
	return sm.read("jwt_secret")
}

func (sm *SecretManager) read(key string) (string, error) {
	secret, err := sm.client.Logical().Read(sm.path)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", fmt.Errorf("no secret at %s", sm.path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret shape at %s", sm.path)
	}
	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret %s has no %s", sm.path, key)
	}
	return value, nil
}
