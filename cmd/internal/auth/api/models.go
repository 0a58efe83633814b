package authapi

import (
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account"
)

type signInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

type reactivateRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type userResponse struct {
	User account.Profile `json:"user"`
}

type signInResponse struct {
	User             account.Profile `json:"user"`
	AccessToken      string          `json:"access_token"`
	AccessExpiresAt  time.Time       `json:"access_expires_at"`
	RefreshToken     string          `json:"refresh_token"`
	RefreshExpiresAt time.Time       `json:"refresh_expires_at"`
}

type refreshResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type sessionsResponse struct {
	Sessions []account.SessionView `json:"sessions"`
}
