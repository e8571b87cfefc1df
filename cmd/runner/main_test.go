// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Multi-V-VM/DoubleJIT-VM/internal/optimizer"
)

func TestParseOptimizeLevel(t *testing.T) {
	cases := map[string]optimizer.Level{
		"none":       optimizer.None,
		"Basic":      optimizer.Basic,
		"":           optimizer.Moderate,
		"moderate":   optimizer.Moderate,
		"AGGRESSIVE": optimizer.Aggressive,
		"aggressive": optimizer.Aggressive,
	}
	for input, want := range cases {
		got, err := parseOptimizeLevel(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseOptimizeLevelRejectsUnknown(t *testing.T) {
	_, err := parseOptimizeLevel("ludicrous")
	assert.Error(t, err)
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "hello", "world"}, splitNonEmpty("a,hello,world"))
}
