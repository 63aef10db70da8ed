package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// DefaultUserAgent identifies API calls made by this tool.
const DefaultUserAgent = "datadeploy"

// Client is the authenticated API handle used to confirm branch heads.
type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	verbose   bool
	logTo     io.Writer
	timeout   time.Duration
	userAgent string
}

type Option func(*options)

// WithVerbose logs one line per request and response to w (stderr when nil).
func WithVerbose(enabled bool, w io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.logTo = w
	}
}

// WithTimeout bounds every API request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	_, _ = fmt.Fprintf(t.w, "[verbose] github api: %s %s\n", req.Method, req.URL.Redacted())
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] github api: error after %s: %v\n", elapsed, err)
		return resp, err
	}
	_, _ = fmt.Fprintf(t.w, "[verbose] github api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), elapsed)
	return resp, nil
}

// NewClient builds a go-github client. An empty token yields an anonymous
// client, which can still read public branches.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, errors.New("github client: ctx is nil")
	}

	o := options{timeout: 30 * time.Second, userAgent: DefaultUserAgent}
	for _, apply := range opts {
		if apply != nil {
			apply(&o)
		}
	}

	httpClient := &http.Client{Transport: newTransport(token, o), Timeout: o.timeout}
	gc := github.NewClient(httpClient)
	gc.UserAgent = o.userAgent
	return &Client{Client: gc, HTTP: httpClient}, nil
}

// newTransport stacks oauth2 over request logging, so the log never sees the
// Authorization header.
func newTransport(token string, o options) http.RoundTripper {
	rt := http.DefaultTransport
	if o.verbose {
		w := o.logTo
		if w == nil {
			w = os.Stderr
		}
		rt = &loggingRoundTripper{base: rt, w: w}
	}
	if token == "" {
		return rt
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   rt,
	}
}
