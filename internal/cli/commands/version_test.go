package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		info    BuildInfo
		wantOut []string
	}{
		{
			name:    "default version",
			info:    BuildInfo{Version: "0.1.0", BuildDate: "unknown", GitCommit: "unknown"},
			wantOut: []string{"feffcheck v0.1.0", "commit unknown"},
		},
		{
			name:    "release build",
			info:    BuildInfo{Version: "1.2.3", BuildDate: "2026-01-02", GitCommit: "abc1234"},
			wantOut: []string{"feffcheck v1.2.3", "commit abc1234, built 2026-01-02 with go"},
		},
		{
			name:    "dev version",
			info:    BuildInfo{Version: "dev"},
			wantOut: []string{"feffcheck vdev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.info)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs([]string{})

			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}

			output := buf.String()
			for _, want := range tt.wantOut {
				if !strings.Contains(output, want) {
					t.Errorf("output should contain %q, got: %s", want, output)
				}
			}
		})
	}
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand(BuildInfo{Version: "test"})

	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}

	if cmd.Short == "" {
		t.Error("Short should not be empty")
	}

	if cmd.Long == "" {
		t.Error("Long should not be empty")
	}
}
