package config

import (
	"sync"
)

var (
	gcsOnce   sync.Once
	gcsConfig *GCSConfig
)

type GCSConfig struct {
	ProjectID       string
	BucketName      string
	CredentialsFile string
}

func GetGCSConfig() *GCSConfig {
	gcsOnce.Do(func() {
		loadEnv()
		gcsConfig = &GCSConfig{
			ProjectID:       getEnv("GCP_PROJECT_ID", ""),
			BucketName:      getEnv("GCS_BUCKET_NAME", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		}
	})
	return gcsConfig
}
