package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smartbulb/smartbulb-go/pkg/config"
	"github.com/smartbulb/smartbulb-go/pkg/discovery"
	"github.com/smartbulb/smartbulb-go/pkg/telemetry"
)

func TestAskYesNo(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" y ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, askYesNo(strings.NewReader(tt.input), &out, "Start monitoring? (y/n): "), "%q", tt.input)
		assert.Equal(t, "Start monitoring? (y/n): ", out.String())
	}
}

func TestRunDemoHeadings(t *testing.T) {
	var entries []*discovery.Entry
	for _, exp := range discovery.DefaultExpected() {
		entries = append(entries, &discovery.Entry{Expected: exp})
	}
	reg := discovery.NewRegistry(entries...)

	var out bytes.Buffer
	runDemo(context.Background(), telemetry.New(nil, telemetry.Config{}), reg, config.Default(), &out)
	text := out.String()

	assert.Equal(t, 2, strings.Count(text, "=== DEVICE READ ==="))
	assert.Equal(t, 1, strings.Count(text, "=== METHOD TEST ==="))
	assert.Equal(t, 1, strings.Count(text, "=== DISCOVERED STRUCTURE ==="))
	assert.NotContains(t, text, "===\n\n===", "no heading directly follows another")
	assert.Contains(t, text, "2 of 2 steps failed")
}
