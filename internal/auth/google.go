package auth

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleVerifier Google ID 토큰 검증기 (AUTH_PROVIDER=google)
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier GoogleVerifier 생성
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		validate: idtoken.Validate,
	}
}

// Verify implements TokenVerifier.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	payload, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	// 이메일 확인 여부 체크
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	email := claimString(payload.Claims, "email")
	return Identity{
		UserID:   payload.Subject,
		UserName: displayName(claimString(payload.Claims, "name"), email, payload.Subject),
		Email:    email,
	}, nil
}
