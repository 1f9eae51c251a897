/*
Package authsdk is the Go client for the starter API, and the home of the wire
types and error codes the server writes.

# SDKClient vs Session

  - SDKClient: unauthenticated calls (login, refresh, logout, health probes)
  - Session: calls that need an access token, refreshing it once when the
    server reports token_expired

	client := authsdk.NewSDKClient("https://api.example.com")

	session, err := client.Login(ctx, authsdk.LoginRequest{
		Provider:    "github",
		AccessToken: githubToken,
	})
	if err != nil {
		return err
	}

	me, err := session.Me(ctx)

# Errors

Non-2xx responses become *APIError. A 429 additionally becomes a
*RateLimitError carrying the X-RateLimit-* headers:

	var rl *authsdk.RateLimitError
	if errors.As(err, &rl) {
		time.Sleep(rl.RetryAfter)
	}

APIError values compare with errors.Is by code, so
errors.Is(err, authsdk.ErrTokenExpired) works on anything the client returns.
*/
package authsdk
