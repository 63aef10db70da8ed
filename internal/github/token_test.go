package github

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// stubGH installs a fake gh on an otherwise empty PATH. An empty script leaves
// gh absent.
func stubGH(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	if script != "" {
		if runtime.GOOS == "windows" {
			t.Skip("gh stub is a shell script")
		}
		if err := os.WriteFile(filepath.Join(dir, "gh"), []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
			t.Fatalf("write gh stub: %v", err)
		}
	}
	t.Setenv("PATH", dir)
}

func TestResolveAuthToken(t *testing.T) {
	tests := []struct {
		name      string
		provided  string
		envName   string
		env       map[string]string
		gh        string
		cancelled bool
		wantToken string
		wantSrc   AuthTokenSource
		wantErr   error
		anyErr    bool
	}{
		{
			name:      "explicit wins over env",
			provided:  " explicit ",
			env:       map[string]string{"GITHUB_TOKEN": "env-token"},
			wantToken: "explicit",
			wantSrc:   AuthTokenSourceExplicit,
		},
		{
			name:      "default env",
			env:       map[string]string{"GITHUB_TOKEN": "env-token"},
			gh:        "echo gh-token",
			wantToken: "env-token",
			wantSrc:   AuthTokenSourceEnv,
		},
		{
			name:      "configured env name",
			envName:   "DEPLOY_TOKEN",
			env:       map[string]string{"GITHUB_TOKEN": "default-token", "DEPLOY_TOKEN": "deploy-token"},
			wantToken: "deploy-token",
			wantSrc:   AuthTokenSourceEnv,
		},
		{
			name:      "configured env empty falls through to gh",
			envName:   "DEPLOY_TOKEN",
			env:       map[string]string{"GITHUB_TOKEN": "default-token", "DEPLOY_TOKEN": ""},
			gh:        "echo gh-token",
			wantToken: "gh-token",
			wantSrc:   AuthTokenSourceGitHubCL,
		},
		{
			name:      "GH_TOKEN backs up the default env",
			env:       map[string]string{"GITHUB_TOKEN": "", "GH_TOKEN": "cli-env-token"},
			wantToken: "cli-env-token",
			wantSrc:   AuthTokenSourceEnv,
		},
		{
			name:    "GH_TOKEN ignored for a configured env name",
			envName: "DEPLOY_TOKEN",
			env:     map[string]string{"DEPLOY_TOKEN": "", "GH_TOKEN": "cli-env-token"},
		},
		{
			name: "nothing available",
			env:  map[string]string{"GITHUB_TOKEN": "", "GH_TOKEN": ""},
		},
		{
			name: "gh not logged in",
			env:  map[string]string{"GITHUB_TOKEN": ""},
			gh:   "echo 'not logged in' >&2; exit 1",
		},
		{
			name:   "gh prints garbage",
			env:    map[string]string{"GITHUB_TOKEN": ""},
			gh:     "printf 'line1\\nline2\\n'",
			anyErr: true,
		},
		{
			name:      "cancelled while asking gh",
			env:       map[string]string{"GITHUB_TOKEN": ""},
			gh:        "echo gh-token",
			cancelled: true,
			wantErr:   context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GH_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			stubGH(t, tt.gh)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
			}

			tok, src, err := ResolveAuthToken(ctx, tt.provided, tt.envName)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.anyErr:
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			case err != nil:
				t.Fatalf("ResolveAuthToken: %v", err)
			}
			if tok != tt.wantToken || src != tt.wantSrc {
				t.Fatalf("got (%q, %q), want (%q, %q)", tok, src, tt.wantToken, tt.wantSrc)
			}
		})
	}
}
