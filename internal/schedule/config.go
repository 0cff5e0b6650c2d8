// Package schedule runs documentation commands on cron schedules, so a
// tree can be re-documented nightly without anyone invoking the CLI.
package schedule

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Commands a job may run.
const (
	CommandGenerate = "generate"
	CommandUpdate   = "update"
	CommandRebuild  = "rebuild"
)

// JobConfig represents one scheduled documentation job
type JobConfig struct {
	Name             string        `toml:"name"`
	Cron             string        `toml:"cron"`
	Command          string        `toml:"command"`
	Model            string        `toml:"model"`
	MaxDuration      time.Duration `toml:"max_duration"`
	NotifyOnComplete bool          `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled jobs
type ScheduleConfig struct {
	Jobs []JobConfig `toml:"job"`
}

// Validate checks if the config is valid
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	switch c.Command {
	case CommandGenerate, CommandUpdate, CommandRebuild:
	case "":
		c.Command = CommandUpdate // Default
	default:
		return fmt.Errorf("unknown command %q", c.Command)
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 2 * time.Hour // Default
	}
	return nil
}

// LoadScheduleConfig loads the job schedule from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all jobs
	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
