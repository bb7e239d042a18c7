package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/laik/xnet/pkg/pipeline"
)

type Config struct {
	Interface         string              `yaml:"interface"`
	ServerAddr        string              `yaml:"server_addr"`
	APIKey            string              `yaml:"api_key"`
	PrometheusAddr    string              `yaml:"prometheus_addr"`
	ReportInterval    time.Duration       `yaml:"report_interval"`
	ReportTopN        int                 `yaml:"report_top_n"`
	SnapLen           int                 `yaml:"snap_len"`
	BufferSizeMB      int                 `yaml:"buffer_size_mb"`
	Tables            pipeline.TableSizes `yaml:"tables"`
	DockerDiscovery   bool                `yaml:"docker_discovery"`
	DockerLabels      map[string]string   `yaml:"docker_labels"`
	DiscoveryInterval time.Duration       `yaml:"discovery_interval"`
	LogLevel          string              `yaml:"log_level"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Interface:         "eth0",
		ServerAddr:        ":8080",
		ReportInterval:    5 * time.Second,
		ReportTopN:        20,
		SnapLen:           65535,
		BufferSizeMB:      8,
		Tables:            pipeline.DefaultTableSizes(),
		DockerLabels:      make(map[string]string),
		DiscoveryInterval: 30 * time.Second,
		LogLevel:          "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
