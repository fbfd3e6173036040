package builder

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPReader fetches @include references over HTTP(S) with bounded retries
// and a per-request deadline. Grounded in the manifests bundled for
// matyasselmeci-golang-htcondor and foxcpp-maddy, both of which reach for
// go-retryablehttp to fetch remote config/build resources the same way this
// reader fetches remote source text.
type HTTPReader struct {
	Client  *retryablehttp.Client
	Timeout time.Duration
}

func NewHTTPReader() *HTTPReader {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.Logger = nil
	return &HTTPReader{Client: c, Timeout: 30 * time.Second}
}

func (r *HTTPReader) Supports(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func (r *HTTPReader) Read(ref string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, ref)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (r *HTTPReader) ParsePath(ref string) (file, path string) {
	u, err := url.Parse(ref)
	if err != nil {
		return ref, ref
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	base := ref
	if len(segs) > 0 && segs[len(segs)-1] != "" {
		base = segs[len(segs)-1]
	}
	return base, ref
}
