// Package identity verifies third-party OAuth access tokens by calling the
// issuing provider's userinfo endpoint.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

var (
	ErrUnsupportedProvider        = errors.New("unsupported_provider")
	ErrIdentityVerificationFailed = errors.New("identity_verification_failed")
)

const (
	DefaultTimeout = 5 * time.Second

	maxUserinfoBytes = 1 << 20
	userAgent        = "starter-api"
)

// Provider knows where a provider's userinfo lives and how to read it.
type Provider interface {
	Name() domain.Provider
	Endpoint() string
	Normalize(body []byte) (domain.IdentityAssertion, error)
}

// Verifier dispatches to a Provider from a fixed lookup table. One GET per
// call, no retries.
type Verifier struct {
	providers map[domain.Provider]Provider
	client    *http.Client
	timeout   time.Duration
	endpoints map[domain.Provider]string
}

type Option func(*Verifier)

// WithTimeout bounds each userinfo call.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithHTTPClient replaces the base client the bearer transport wraps.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithEndpoint points a provider at a different userinfo URL.
func WithEndpoint(p domain.Provider, url string) Option {
	return func(v *Verifier) { v.endpoints[p] = url }
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		providers: map[domain.Provider]Provider{},
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:   DefaultTimeout,
		endpoints: map[domain.Provider]string{},
	}
	for _, p := range []Provider{googleProvider{}, githubProvider{}, facebookProvider{}} {
		v.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify asks provider who owns accessToken.
func (v *Verifier) Verify(ctx context.Context, provider domain.Provider, accessToken string) (domain.IdentityAssertion, error) {
	p, ok := v.providers[provider]
	if !ok {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	if accessToken == "" {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: empty access token", ErrIdentityVerificationFailed)
	}

	endpoint := p.Endpoint()
	if override, ok := v.endpoints[provider]; ok {
		endpoint = override
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, v.client),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %v", ErrIdentityVerificationFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %s: %v", ErrIdentityVerificationFailed, provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %s returned status %d", ErrIdentityVerificationFailed, provider, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserinfoBytes))
	if err != nil {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %s: read body: %v", ErrIdentityVerificationFailed, provider, err)
	}

	assertion, err := p.Normalize(body)
	if err != nil {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %s: %v", ErrIdentityVerificationFailed, provider, err)
	}
	if assertion.Subject == "" {
		return domain.IdentityAssertion{}, fmt.Errorf("%w: %s: missing subject", ErrIdentityVerificationFailed, provider)
	}
	assertion.Provider = provider
	return assertion, nil
}
