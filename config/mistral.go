package config

import (
	"fmt"
	"sync"
)

var (
	mistralOnce   sync.Once
	mistralConfig *MistralConfig
)

type MistralConfig struct {
	APIKey   string
	Endpoint string
}

func GetMistralConfig() *MistralConfig {
	mistralOnce.Do(func() {
		loadEnv()
		mistralConfig = &MistralConfig{
			APIKey:   getEnv("MISTRAL_API_KEY", ""),
			Endpoint: getEnv("MISTRAL_ENDPOINT", ""),
		}
	})
	return mistralConfig
}

// Require fails when the API key is absent.
func (c *MistralConfig) Require() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: MISTRAL_API_KEY is not set", ErrMissingCredential)
	}
	return nil
}
