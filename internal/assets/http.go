package assets

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"cardpress/internal/render"
)

// HTTPResolver fetches http(s) URLs.
type HTTPResolver struct {
	client *http.Client
}

func NewHTTPResolver(timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPResolver{client: &http.Client{Timeout: timeout}}
}

// NewHTTPResolverWithClient uses c as is.
func NewHTTPResolverWithClient(c *http.Client) *HTTPResolver {
	return &HTTPResolver{client: c}
}

func (h *HTTPResolver) Resolve(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", render.ErrAssetNotFound, url)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return nil, fmt.Errorf("fetch %s: http %d", url, res.StatusCode)
	}
	return Decode(res.Body)
}
