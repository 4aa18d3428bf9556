// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"os"
	"slices"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

// Config holds the cost model and target description of the pass.
type Config struct {
	// Size is the scratchpad capacity in bytes.
	Size int64 `yaml:"spm_size"`

	// LatencyDiff is the access latency saved per access served by the
	// scratchpad instead of main memory.
	LatencyDiff float64 `yaml:"latency_diff"`

	// ThroughputRAM and ThroughputSPM are the per byte costs of writing a
	// variable back to main memory and of copying it into the scratchpad.
	ThroughputRAM float64 `yaml:"throughput_ram"`
	ThroughputSPM float64 `yaml:"throughput_spm"`

	// WordSizes are the legal transfer widths, largest first.
	WordSizes []int64 `yaml:"word_sizes"`

	// Entry names the procedure placement starts from.
	Entry string `yaml:"entry"`

	// Base is the address rewritten accesses add their offset to.
	Base int64 `yaml:"spm_base"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Size:          1024,
		LatencyDiff:   20,
		ThroughputRAM: 1.0,
		ThroughputSPM: 1.0,
		WordSizes:     []int64{4, 2, 1},
		Entry:         "main",
	}
}

// LoadConfig reads a YAML configuration file.
// Settings missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrap(err, "config %v", path)
	}

	return c, nil
}

// ParseConfig decodes a YAML configuration.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()

	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "decode")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks the configuration for values the pass cannot work with.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return errors.New("spm_size must be positive: %d", c.Size)
	}
	if c.LatencyDiff < 0 || c.ThroughputRAM < 0 || c.ThroughputSPM < 0 {
		return errors.New("costs must not be negative")
	}
	if c.Entry == "" {
		return errors.New("no entry procedure")
	}
	if len(c.WordSizes) == 0 {
		c.WordSizes = []int64{4, 2, 1}
	}
	for _, w := range c.WordSizes {
		if w <= 0 {
			return errors.New("bad word size %d", w)
		}
	}
	if !slices.Contains(c.WordSizes, 1) {
		return errors.New("word_sizes must contain 1")
	}

	c.WordSizes = slices.Clone(c.WordSizes)
	slices.Sort(c.WordSizes)
	slices.Reverse(c.WordSizes)
	c.WordSizes = slices.Compact(c.WordSizes)

	return nil
}
