package domain

// Provider names an external identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderGitHub   Provider = "github"
	ProviderFacebook Provider = "facebook"
)

// IdentityAssertion is the normalised userinfo a provider vouched for. It is
// transient: login maps it onto a User and discards it.
type IdentityAssertion struct {
	Provider      Provider
	Subject       string // provider's own user id
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
}
