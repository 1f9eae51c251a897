package identity

import (
	"encoding/json"
	"strconv"

	"github.com/aussiebroadwan/starter/internal/api/domain"
)

type googleProvider struct{}

func (googleProvider) Name() domain.Provider { return domain.ProviderGoogle }
func (googleProvider) Endpoint() string      { return "https://www.googleapis.com/oauth2/v3/userinfo" }

func (googleProvider) Normalize(body []byte) (domain.IdentityAssertion, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.IdentityAssertion{}, err
	}
	return domain.IdentityAssertion{
		Subject:       info.Sub,
		Email:         info.Email,
		Name:          info.Name,
		AvatarURL:     info.Picture,
		EmailVerified: info.EmailVerified,
	}, nil
}

// GitHub only returns a public email; its presence is taken as verified.
type githubProvider struct{}

func (githubProvider) Name() domain.Provider { return domain.ProviderGitHub }
func (githubProvider) Endpoint() string      { return "https://api.github.com/user" }

func (githubProvider) Normalize(body []byte) (domain.IdentityAssertion, error) {
	var info struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.IdentityAssertion{}, err
	}

	var sub string
	if info.ID != 0 {
		sub = strconv.FormatInt(info.ID, 10)
	}
	return domain.IdentityAssertion{
		Subject:       sub,
		Email:         info.Email,
		Name:          info.Name,
		AvatarURL:     info.AvatarURL,
		EmailVerified: info.Email != "",
	}, nil
}

type facebookProvider struct{}

func (facebookProvider) Name() domain.Provider { return domain.ProviderFacebook }
func (facebookProvider) Endpoint() string {
	return "https://graph.facebook.com/me?fields=id,name,email,picture"
}

func (facebookProvider) Normalize(body []byte) (domain.IdentityAssertion, error) {
	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.IdentityAssertion{}, err
	}
	return domain.IdentityAssertion{
		Subject:       info.ID,
		Email:         info.Email,
		Name:          info.Name,
		AvatarURL:     info.Picture.Data.URL,
		EmailVerified: info.Email != "",
	}, nil
}
