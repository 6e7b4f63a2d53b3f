package http

import (
	"context"
	"io"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rosterlabs/signsync/internal/version"
)

// NewRetryableRequestWithContext is a wrapper around retryablehttp.NewRequestWithContext that modifies the request by
// adding additional headers.
func NewRetryableRequestWithContext(ctx context.Context, method, url string, body io.Reader) (*retryablehttp.Request, error) {
	r, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return r, err
	}
	r.Header.Set("User-Agent", "signsync/"+version.Version)

	return r, err
}
