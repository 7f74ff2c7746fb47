package config

import (
	"fmt"
	"os"

	"github.com/MacJediWizard/bosun/internal/director"
	"gopkg.in/yaml.v3"
)

// BackupSchedule describes one recurring scheduled backup.
type BackupSchedule struct {
	Deployment string `yaml:"deployment"`
	Cron       string `yaml:"cron"`
	Director   string `yaml:"director,omitempty"`
}

// DirectorsFile is the YAML document describing director backends and
// scheduled backups.
type DirectorsFile struct {
	Directors []director.Config `yaml:"directors"`
	Schedules []BackupSchedule  `yaml:"schedules,omitempty"`
}

// LoadDirectorsFile reads and validates the directors YAML file.
func LoadDirectorsFile(path string) (*DirectorsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directors file: %w", err)
	}

	var f DirectorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directors file: %w", err)
	}
	if len(f.Directors) == 0 {
		return nil, fmt.Errorf("directors file %s configures no directors", path)
	}
	for _, s := range f.Schedules {
		if s.Deployment == "" || s.Cron == "" {
			return nil, fmt.Errorf("schedule entries need deployment and cron")
		}
	}
	return &f, nil
}
