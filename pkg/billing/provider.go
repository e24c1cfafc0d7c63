package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultProviderTimeout bounds the canonical re-fetch during webhook
// processing. Providers enforce response-time SLAs on webhook endpoints, so
// a slow re-fetch must fail fast and let the caller fall back to the event
// payload.
const DefaultProviderTimeout = 5 * time.Second

// HTTPProvider implements Provider against the billing provider's REST API
type HTTPProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider client with a bounded request timeout
func NewHTTPProvider(apiKey, baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &HTTPProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetSubscription retrieves the canonical subscription object by its
// provider identifier
func (p *HTTPProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	url := fmt.Sprintf("%s/v1/subscriptions/%s", p.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var sub ProviderSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode provider subscription: %w", err)
	}
	return &sub, nil
}
