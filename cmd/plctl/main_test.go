package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantName string
		wantArgs []string
	}{
		{"no args shows help", nil, "help", []string{}},
		{"command only", []string{"migrate"}, "migrate", []string{}},
		{"command with flags", []string{"seed", "-events", "50"}, "seed", []string{"-events", "50"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args := parseArgs(tt.args)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"migrate", "seed", "status", "geoip-update", "help"} {
		assert.NotNil(t, findCommand(name), name)
	}
	assert.Nil(t, findCommand("create-admin-user"))
}

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	for _, cmd := range commands {
		assert.Contains(t, out.String(), cmd.Name()+": ")
	}
}
