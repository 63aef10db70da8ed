package github

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNewClient_NilContext(t *testing.T) {
	var nilCtx context.Context
	if _, err := NewClient(nilCtx, "tok"); err == nil || !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("expected nil ctx error, got %v", err)
	}
}

func TestNewClient_Timeout(t *testing.T) {
	c, err := NewClient(context.Background(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.HTTP.Timeout != 30*time.Second {
		t.Fatalf("default timeout = %s, want 30s", c.HTTP.Timeout)
	}

	c, err = NewClient(context.Background(), "", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.HTTP.Timeout != 2*time.Second {
		t.Fatalf("timeout = %s, want 2s", c.HTTP.Timeout)
	}
}

func TestNewClient_Authorization(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		opts     []Option
		wantAuth string
		wantUA   string
	}{
		{name: "token sent as bearer", token: "push-token", wantAuth: "Bearer push-token", wantUA: DefaultUserAgent},
		{name: "anonymous without token", token: "", wantAuth: "", wantUA: DefaultUserAgent},
		{name: "custom user agent", token: "push-token", opts: []Option{WithUserAgent("datadeploy/1.2.3")}, wantAuth: "Bearer push-token", wantUA: "datadeploy/1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotUA string
			c := newTestClient(t, tt.token, func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotUA = r.Header.Get("User-Agent")
				_, _ = w.Write([]byte(`{"name":"main","commit":{"sha":"abc123"}}`))
			}, tt.opts...)
			if _, err := c.BranchHead(context.Background(), "acme", "data", "main"); err != nil {
				t.Fatalf("BranchHead: %v", err)
			}
			if gotAuth != tt.wantAuth {
				t.Fatalf("Authorization = %q, want %q", gotAuth, tt.wantAuth)
			}
			if gotUA != tt.wantUA {
				t.Fatalf("User-Agent = %q, want %q", gotUA, tt.wantUA)
			}
		})
	}
}

func TestNewClient_VerboseLogsRequestAndStatus(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClient(t, "push-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Branch not found"}`))
	}, WithVerbose(true, &buf))

	_, _ = c.BranchHead(context.Background(), "acme", "data", "main")

	logged := buf.String()
	for _, want := range []string{"[verbose] github api: GET", "/repos/acme/data/branches/main", "404 Not Found"} {
		if !strings.Contains(logged, want) {
			t.Fatalf("missing %q in verbose log: %q", want, logged)
		}
	}
	if strings.Contains(logged, "push-token") {
		t.Fatalf("token leaked into verbose log: %q", logged)
	}
}
