// Package rates supplies exchange rates against the reference currency.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sjsage522/pricescout/internal/aggregate"
	"sjsage522/pricescout/logger"
)

// latestResponse is the open.er-api.com "latest" payload
type latestResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

// Status describes where the current rates came from
type Status struct {
	Live      bool      `json:"live"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Provider keeps the last good rates and falls back to configured ones
// until a live fetch succeeds
type Provider struct {
	client    *http.Client
	url       string
	reference string
	fallback  aggregate.ExchangeRates

	mu      sync.RWMutex
	current aggregate.ExchangeRates
	status  Status

	cron *cron.Cron
}

// NewProvider creates a provider that starts out with the fallback rates
func NewProvider(url, reference string, fallback map[string]float64, timeout time.Duration) *Provider {
	base := aggregate.ExchangeRates{Reference: strings.ToUpper(reference)}.With(fallback)
	return &Provider{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		reference: base.Reference,
		fallback:  base,
		current:   base,
	}
}

// Current returns the rates to use for the next pipeline run
func (p *Provider) Current() aggregate.ExchangeRates {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.With(nil)
}

// Status reports whether live rates are in use
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Refresh fetches live rates. On failure the previous rates stay in place.
func (p *Provider) Refresh(ctx context.Context) error {
	log := logger.ForRates()

	live, err := p.fetch(ctx)
	if err != nil {
		p.mu.Lock()
		p.status.LastError = err.Error()
		p.mu.Unlock()

		log.Warn().Err(err).Msg("Failed to refresh exchange rates, keeping previous rates")
		return err
	}

	p.mu.Lock()
	p.current = p.fallback.With(live)
	p.status = Status{Live: true, UpdatedAt: time.Now().UTC()}
	p.mu.Unlock()

	log.Info().Int("currencies", len(live)).Msg("Exchange rates refreshed")
	return nil
}

func (p *Provider) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates endpoint returned status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("rates endpoint result %q", body.Result)
	}
	if !strings.EqualFold(body.BaseCode, p.reference) {
		return nil, fmt.Errorf("rates base %q does not match reference %q", body.BaseCode, p.reference)
	}

	live := make(map[string]float64, len(body.Rates))
	for code, rate := range body.Rates {
		if rate > 0 {
			live[strings.ToUpper(code)] = rate
		}
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("rates endpoint returned no usable rates")
	}
	return live, nil
}

// Start refreshes once and then on schedule (a cron spec such as "@every 1h")
func (p *Provider) Start(ctx context.Context, schedule string) error {
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(schedule, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		p.Refresh(refreshCtx)
	}); err != nil {
		return fmt.Errorf("invalid rates schedule %q: %w", schedule, err)
	}

	go func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		p.Refresh(refreshCtx)
	}()

	p.cron.Start()
	logger.ForRates().Info().Str("schedule", schedule).Msg("Exchange rate refresh scheduled")
	return nil
}

// Stop stops the refresh schedule
func (p *Provider) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}
