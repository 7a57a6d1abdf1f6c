package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketpulse/internal/domain"
)

// MultiProvider tries each provider in order and returns the first non-empty
// history.
type MultiProvider struct {
	providers []Provider
}

// NewMultiProvider creates a fallback chain.
func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

// Name joins the chain's provider names.
func (m *MultiProvider) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// History implements Provider.
func (m *MultiProvider) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	if len(m.providers) == 0 {
		return nil, errors.New("no quote providers configured")
	}
	var errs []error
	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hist, err := p.History(ctx, symbol, sessions)
		if err == nil && len(hist) > 0 {
			return hist, nil
		}
		if err == nil {
			err = ErrUnavailable
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, errors.Join(errs...)
}
