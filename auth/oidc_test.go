package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-rooms/config"
)

func TestAuthenticateUnknownProvider(t *testing.T) {
	cfg := &config.Config{OIDCConfigs: []config.OIDCConfig{{Name: "google", ProviderUrl: "https://accounts.google.com"}}}
	_, err := Authenticate(context.Background(), "token", "github", cfg)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
