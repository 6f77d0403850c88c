package client

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	PhoneNumber          string `json:"phoneNumber"`
}

// Account is the public view of a user returned by register and login.
type Account struct {
	Message     string `json:"message"`
	ID          int64  `json:"id"`
	Admin       bool   `json:"admin"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	PropertyID  *int64 `json:"propertyId,omitempty"`
}

// Session is what the server knows about the current access token.
type Session struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

type tokenResponse struct {
	Account
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
