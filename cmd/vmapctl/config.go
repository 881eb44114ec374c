package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/netsec-ethz/vmapclient/pkg/util"
)

type Config struct {
	BaseURL string // e.g. https://api.example.com
	Account string
	APIKey  string
	MapName string

	RequestTimeout util.DurationWrap
	// HeadCacheSize is the number of map tree heads of exact sizes to keep. 0 disables it.
	HeadCacheSize int
}

func sampleConfig() *Config {
	return &Config{
		BaseURL:        "https://localhost:8080",
		Account:        "1234",
		APIKey:         "secret",
		MapName:        "testmap",
		RequestTimeout: util.DurationWrap{Duration: 30 * time.Second},
		HeadCacheSize:  64,
	}
}

func ReadConfigFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// JSON to Config.
	c := &Config{}
	err = json.Unmarshal(data, c)

	return c, err
}

func WriteConfigurationToFile(filePath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0600)
}
