package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/reservation/internal/server/models"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type registerRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	PhoneNumber          string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AuthResponse describes an account. Every field is listed explicitly so no
// stored column (the password hash in particular) can leak into a response.
type AuthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ID          int64  `json:"id"`
	Admin       bool   `json:"admin"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	PropertyID  *int64 `json:"propertyId,omitempty"`
}

// TokenResponse is an AuthResponse plus a fresh token pair.
type TokenResponse struct {
	AuthResponse
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SessionResponse echoes the claims of a verified access token.
type SessionResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Admin  bool   `json:"admin"`
}

func newAuthResponse(message string, u *models.User) AuthResponse {
	return AuthResponse{
		Status:      statusSuccess,
		Message:     message,
		ID:          u.ID,
		Admin:       u.Admin,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		PropertyID:  u.PropertyID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
