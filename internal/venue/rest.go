package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

const maxRESTBody = 16 << 20

// GetJSON fetches url and decodes the response into out, pacing through the
// venue's REST limiter. Used by adapters for symbol enumeration.
func GetJSON(ctx context.Context, venue schema.VenueID, client *http.Client, limiter *rate.Limiter, url string, out any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.New(string(venue), errs.CodeNetwork,
			errs.WithMessage("fetch "+url), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.New(string(venue), errs.CodeRateLimited,
			errs.WithMessage("rest rate limited"), errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.New(string(venue), errs.CodeVenueRejected,
			errs.WithMessage("rest request rejected"), errs.WithHTTP(resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errs.New(string(venue), errs.CodeNetwork,
			errs.WithMessage("unexpected rest status"), errs.WithHTTP(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTBody))
	if err != nil {
		return errs.New(string(venue), errs.CodeNetwork,
			errs.WithMessage("read rest body"), errs.WithCause(err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(string(venue), errs.CodeInvalidMessage,
			errs.WithMessage("decode rest body"), errs.WithCause(err))
	}
	return nil
}
