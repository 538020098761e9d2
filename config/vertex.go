package config

import (
	"fmt"
	"sync"
)

var (
	vertexOnce   sync.Once
	vertexConfig *VertexConfig
)

type VertexConfig struct {
	ProjectID string
	Region    string
	Model     string
}

func GetVertexConfig() *VertexConfig {
	vertexOnce.Do(func() {
		loadEnv()
		vertexConfig = &VertexConfig{
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
			Region:    getEnv("GCP_REGION", "us-central1"),
			Model:     getEnv("VERTEX_MODEL", "gemini-2.5-pro"),
		}
	})
	return vertexConfig
}

func (c *VertexConfig) Require() error {
	if c.ProjectID == "" || c.Region == "" {
		return fmt.Errorf("%w: GCP_PROJECT_ID and GCP_REGION", ErrMissingCredential)
	}
	return nil
}
