package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"whiteboard-backend/internal/config"
)

// NewVerifier builds the verifier selected by AUTH_PROVIDER.
func NewVerifier(ctx context.Context, cfg config.AuthConfig, app *firebase.App) (TokenVerifier, error) {
	switch cfg.Provider {
	case config.AuthProviderJWT:
		return NewJWTManager(cfg.JWTSecret, cfg.AccessTokenExpiry), nil
	case config.AuthProviderFirebase:
		if app == nil {
			return nil, fmt.Errorf("%w: firebase app is not configured", config.ErrInvalidConfig)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		return NewFirebaseVerifier(client), nil
	case config.AuthProviderGoogle:
		return NewGoogleVerifier(cfg.GoogleClientID), nil
	default:
		return nil, fmt.Errorf("%w: unknown AUTH_PROVIDER %q", config.ErrInvalidConfig, cfg.Provider)
	}
}
