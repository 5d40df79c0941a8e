package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mwhitby/talentbeam/optimizer/allocation"
)

// Config is the full run configuration, loaded from a YAML file.
type Config struct {
	Player struct {
		Name  string `mapstructure:"name"`
		Level int    `mapstructure:"level"`
		Race  string `mapstructure:"race"`
	} `mapstructure:"player"`

	Tree struct {
		// File is a local JSON dump of the talent calculator data. URL, if
		// set, takes precedence and fetches the data live.
		File string `mapstructure:"file"`
		URL  string `mapstructure:"url"`
		Spec string `mapstructure:"spec"`
	} `mapstructure:"tree"`

	Simc struct {
		Executable  string        `mapstructure:"executable"`
		OutputDir   string        `mapstructure:"output_dir"`
		Timeout     time.Duration `mapstructure:"timeout"`
		ProfileFile string        `mapstructure:"profile_file"`
	} `mapstructure:"simc"`

	Search struct {
		BeamWidth       int   `mapstructure:"beam_width"`
		MaxExplorations int   `mapstructure:"max_explorations_per_candidate"`
		Seed            int64 `mapstructure:"seed"`
	} `mapstructure:"search"`

	Locked struct {
		ClassTree string `mapstructure:"class_tree"`
		HeroTree  string `mapstructure:"hero_tree"`
	} `mapstructure:"locked"`

	BlockedSpecTalents []struct {
		NodeID      string `mapstructure:"node_id"`
		ChoiceIndex int    `mapstructure:"choice_index"`
	} `mapstructure:"blocked_spec_talents"`

	EvaluationsDir string `mapstructure:"evaluations_dir"`
}

// LoadConfig reads and validates the YAML config at cfgPath.
func LoadConfig(cfgPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgPath)

	v.SetDefault("tree.spec", "devourer")
	v.SetDefault("simc.executable", "simc")
	v.SetDefault("simc.output_dir", "simc/output")
	v.SetDefault("simc.timeout", 5*time.Minute)
	v.SetDefault("search.beam_width", 10)
	v.SetDefault("search.max_explorations_per_candidate", 10)
	v.SetDefault("evaluations_dir", "data/evaluations")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Tree.File == "" && cfg.Tree.URL == "" {
		return nil, fmt.Errorf("config: one of tree.file or tree.url is required")
	}
	if cfg.Locked.ClassTree == "" {
		return nil, fmt.Errorf("config: locked.class_tree is required")
	}
	if cfg.Locked.HeroTree == "" {
		return nil, fmt.Errorf("config: locked.hero_tree is required")
	}
	return &cfg, nil
}

// BlockList converts the configured blocked talents into the search's form.
func (c *Config) BlockList() allocation.BlockList {
	blocked := make(allocation.BlockList, len(c.BlockedSpecTalents))
	for _, b := range c.BlockedSpecTalents {
		blocked[allocation.NodeChoice{NodeID: b.NodeID, ChoiceIndex: b.ChoiceIndex}] = true
	}
	return blocked
}
