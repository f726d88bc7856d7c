package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/domain"
	"studio/internal/providers"
)

// ErrNoMedia is reported when neither attempt returned usable media and no
// attempt produced a more specific error.
var ErrNoMedia = fmt.Errorf("%w: no media in response", domain.ErrProviderFailure)

// AttemptPolicy makes at most two provider calls: one against Primary and,
// when that yields no media and Fallback differs, one against Fallback.
type AttemptPolicy struct {
	Primary  string
	Fallback string
}

// Attempt records a single provider call.
type Attempt struct {
	Model string
	Media *providers.MediaResult
	Err   error
}

// Outcome is the result of running the policy. Media is non-empty on success.
type Outcome struct {
	Model    string
	Media    *providers.MediaResult
	Attempts []Attempt
	Err      error
}

// FellBack reports whether the successful media came from the fallback model.
func (o Outcome) FellBack() bool {
	return len(o.Attempts) == 2 && !o.Media.Empty()
}

// InvokeFunc performs one provider call for model.
type InvokeFunc func(ctx context.Context, model string) (*providers.MediaResult, error)

// Run executes the policy.
func (p AttemptPolicy) Run(ctx context.Context, invoke InvokeFunc) Outcome {
	first := attempt(ctx, p.Primary, invoke)
	out := Outcome{Attempts: []Attempt{first}}
	if !first.Media.Empty() {
		out.Model, out.Media = first.Model, first.Media
		return out
	}

	if p.Fallback == "" || p.Fallback == p.Primary || ctx.Err() != nil {
		out.Err = preferredError(nil, first.Err)
		return out
	}

	second := attempt(ctx, p.Fallback, invoke)
	out.Attempts = append(out.Attempts, second)
	if !second.Media.Empty() {
		out.Model, out.Media = second.Model, second.Media
		return out
	}
	out.Err = preferredError(second.Err, first.Err)
	return out
}

func attempt(ctx context.Context, model string, invoke InvokeFunc) Attempt {
	media, err := invoke(ctx, model)
	if err != nil {
		media = nil
	}
	return Attempt{Model: model, Media: media, Err: err}
}

// preferredError picks the fallback error, then the primary one, then the
// generic no-media error.
func preferredError(fallback, primary error) error {
	switch {
	case fallback != nil:
		return fallback
	case primary != nil:
		return primary
	default:
		return ErrNoMedia
	}
}

// providerError extracts a classified provider error from err, if any.
func providerError(err error) (*providers.ProviderError, bool) {
	var perr *providers.ProviderError
	ok := errors.As(err, &perr)
	return perr, ok
}
