package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/service/mocks"
	"github.com/aussiebroadwan/starter/internal/api/store/drivers/sqlite"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func newAuthServiceWithMocks(t *testing.T) (*AuthService, *mocks.MockIdentityVerifier, *sqlite.Store) {
	t.Helper()

	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockIdentityVerifier(ctrl)
	s := newTestStore(t)

	return &AuthService{
		Store:    s,
		Tokens:   newTestTokenService(t, s, newTestClock()),
		Identity: verifier,
	}, verifier, s
}

func TestLoginCreatesUser(t *testing.T) {
	ctx := context.Background()
	svc, verifier, s := newAuthServiceWithMocks(t)

	verifier.EXPECT().
		Verify(gomock.Any(), domain.ProviderGoogle, "provider-token").
		Return(domain.IdentityAssertion{
			Provider:      domain.ProviderGoogle,
			Subject:       "g-1",
			Email:         "Ada@Example.com",
			Name:          "Ada",
			AvatarURL:     "https://img/ada",
			EmailVerified: true,
		}, nil)

	pair, err := svc.Login(ctx, LoginParams{Provider: "Google", AccessToken: "provider-token"})
	require.NoError(t, err)
	require.Equal(t, domain.TokenType, pair.TokenType)

	user, err := s.Users().GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ada", user.Name)
	require.Equal(t, "https://img/ada", user.Image)
	require.True(t, user.EmailVerified)

	payload, err := svc.Tokens.Validate(pair.AccessToken, domain.TokenKindAccess)
	require.NoError(t, err)
	require.Equal(t, user.ID, payload.Subject)
}

func TestLoginExistingUser(t *testing.T) {
	ctx := context.Background()
	first := domain.IdentityAssertion{Subject: "gh-1", Email: "octo@example.com", Name: "Octo", EmailVerified: true}
	second := domain.IdentityAssertion{Subject: "gh-1", Email: "octo@example.com", Name: "Octocat", AvatarURL: "https://img/new", EmailVerified: true}

	for _, refresh := range []bool{false, true} {
		t.Run(fmt.Sprintf("refresh profile %v", refresh), func(t *testing.T) {
			svc, verifier, s := newAuthServiceWithMocks(t)
			svc.RefreshProfileOnLogin = refresh

			gomock.InOrder(
				verifier.EXPECT().Verify(gomock.Any(), domain.ProviderGitHub, "t1").Return(first, nil),
				verifier.EXPECT().Verify(gomock.Any(), domain.ProviderGitHub, "t2").Return(second, nil),
			)

			p1, err := svc.Login(ctx, LoginParams{Provider: "github", AccessToken: "t1"})
			require.NoError(t, err)
			p2, err := svc.Login(ctx, LoginParams{Provider: "github", AccessToken: "t2"})
			require.NoError(t, err)

			a, err := svc.Tokens.Validate(p1.AccessToken, domain.TokenKindAccess)
			require.NoError(t, err)
			b, err := svc.Tokens.Validate(p2.AccessToken, domain.TokenKindAccess)
			require.NoError(t, err)
			require.Equal(t, a.Subject, b.Subject, "same email maps to the same user")

			n, err := s.Users().CountUsers(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, n)

			user, err := s.Users().GetUserByID(ctx, a.Subject)
			require.NoError(t, err)
			if refresh {
				require.Equal(t, "Octocat", user.Name)
				require.Equal(t, "https://img/new", user.Image)
			} else {
				require.Equal(t, "Octo", user.Name)
				require.Empty(t, user.Image)
			}
		})
	}
}

func TestLoginEmailFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("request email used when provider withholds it", func(t *testing.T) {
		svc, verifier, s := newAuthServiceWithMocks(t)
		verifier.EXPECT().Verify(gomock.Any(), domain.ProviderFacebook, "tok").
			Return(domain.IdentityAssertion{Subject: "fb-1"}, nil)

		_, err := svc.Login(ctx, LoginParams{Provider: "facebook", AccessToken: "tok", Email: "me@example.com", Name: "Me"})
		require.NoError(t, err)

		user, err := s.Users().GetUserByEmail(ctx, "me@example.com")
		require.NoError(t, err)
		require.Equal(t, "Me", user.Name)
		require.False(t, user.EmailVerified)
	})

	t.Run("no email anywhere", func(t *testing.T) {
		svc, verifier, _ := newAuthServiceWithMocks(t)
		verifier.EXPECT().Verify(gomock.Any(), domain.ProviderFacebook, "tok").
			Return(domain.IdentityAssertion{Subject: "fb-1"}, nil)

		_, err := svc.Login(ctx, LoginParams{Provider: "facebook", AccessToken: "tok"})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestLoginVerifierErrors(t *testing.T) {
	ctx := context.Background()

	for _, want := range []error{ErrUnsupportedProvider, ErrIdentityVerificationFailed} {
		t.Run(want.Error(), func(t *testing.T) {
			svc, verifier, s := newAuthServiceWithMocks(t)
			verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(domain.IdentityAssertion{}, fmt.Errorf("%w: detail", want))

			_, err := svc.Login(ctx, LoginParams{Provider: "twitter", AccessToken: "tok", Email: "x@example.com"})
			require.ErrorIs(t, err, want)

			n, err := s.Users().CountUsers(ctx)
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, verifier, _ := newAuthServiceWithMocks(t)
	verifier.EXPECT().Verify(gomock.Any(), domain.ProviderGoogle, "tok").
		Return(domain.IdentityAssertion{Subject: "g", Email: "l@example.com"}, nil)

	pair, err := svc.Login(ctx, LoginParams{Provider: "google", AccessToken: "tok"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, ""))
	require.NoError(t, svc.Logout(ctx, "garbage"))
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenReplayed)
}
