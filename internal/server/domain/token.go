package domain

// TokenResponse is the wire shape returned by the login and refresh
// endpoints. RefreshToken is omitted for bootstrap and refresh grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
