// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spm

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fkuehnel/golang-spm/ir"
)

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(`
spm_size: 256
latency_diff: 5
word_sizes: [1, 4, 4, 2]
spm_base: 0x2000
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := DefaultConfig()
	want.Size = 256
	want.LatencyDiff = 5
	want.Base = 0x2000

	if c.Size != want.Size || c.LatencyDiff != want.LatencyDiff || c.Base != want.Base ||
		c.ThroughputRAM != want.ThroughputRAM || c.ThroughputSPM != want.ThroughputSPM || c.Entry != want.Entry {
		t.Errorf("config %+v, want %+v", c, want)
	}
	if !slices.Equal(c.WordSizes, []int64{4, 2, 1}) {
		t.Errorf("word sizes %v, want [4 2 1]", c.WordSizes)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spm.yaml")
	if err := os.WriteFile(path, []byte("spm_size: 64\nentry: start\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Size != 64 || c.Entry != "start" || c.LatencyDiff != 20 {
		t.Errorf("config %+v", c)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("missing file accepted")
	}
}

func TestBadConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"size", "spm_size: 0"},
		{"negative cost", "throughput_ram: -1"},
		{"no byte width", "word_sizes: [4, 2]"},
		{"zero width", "word_sizes: [0, 1]"},
		{"no entry", "entry: ''"},
		{"syntax", "spm_size: ["},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tc.yaml)); err == nil {
				t.Errorf("%q accepted", tc.yaml)
			}
		})
	}
}

func TestChunks(t *testing.T) {
	s := New(ir.NewProgram(), DefaultConfig())

	for _, tc := range []struct {
		size int64
		want []int64
	}{
		{1, []int64{1}},
		{3, []int64{1, 2}},
		{4, []int64{4}},
		{6, []int64{2, 4}},
		{7, []int64{1, 2, 4}},
		{8, []int64{4, 4}},
	} {
		if got := s.chunks(tc.size); !slices.Equal(got, tc.want) {
			t.Errorf("chunks(%d) = %v, want %v", tc.size, got, tc.want)
		}
	}

	cfg := DefaultConfig()
	cfg.WordSizes = []int64{8, 4, 2, 1}
	s = New(ir.NewProgram(), cfg)
	if got := s.chunks(12); !slices.Equal(got, []int64{4, 8}) {
		t.Errorf("chunks(12) = %v, want [4 8]", got)
	}
}
