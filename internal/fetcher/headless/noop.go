package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

// ErrDisabled is returned by Disabled for every fetch.
var ErrDisabled = errors.New("headless rendering disabled")

// Disabled stands in for the renderer when headless.enabled is false.
type Disabled struct{}

// Fetch always fails with ErrDisabled.
func (Disabled) Fetch(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, ErrDisabled
}
