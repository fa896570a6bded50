package models

import "time"

// Credentials are the developer license fields needed to obtain a vehicle JWT.
type Credentials struct {
	ClientID       string `json:"clientId"`
	RedirectURI    string `json:"redirectUri"`
	APIKey         string `json:"apiKey"`
	VehicleTokenID string `json:"vehicleTokenId"`
}

// Complete reports whether every field required for token issuance is set.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.RedirectURI != "" && c.APIKey != "" && c.VehicleTokenID != ""
}

// Saved returns the subset of the credentials that may be persisted.
func (c Credentials) Saved() SavedCredentials {
	return SavedCredentials{
		ClientID:    c.ClientID,
		RedirectURI: c.RedirectURI,
		APIKey:      c.APIKey,
	}
}

// SavedCredentials is the persisted credential snapshot. The vehicle token id
// is deliberately not part of it.
type SavedCredentials struct {
	ClientID    string    `json:"clientId"`
	RedirectURI string    `json:"redirectUri"`
	APIKey      string    `json:"apiKey"`
	SavedAt     time.Time `json:"savedAt,omitempty"`
}

// TokenGrant is a successful response from the token-issuing endpoint.
type TokenGrant struct {
	VehicleJWT string `json:"vehicle_jwt"`
	ExpiresIn  int    `json:"expires_in,omitempty"`
	Message    string `json:"message,omitempty"`
}

// TokenStatus is a point-in-time view of a workspace's vehicle JWT.
type TokenStatus struct {
	VehicleJWT string `json:"vehicleJwt" msgpack:"vehicleJwt"`
	// ExpiresIn is nil until a token has been issued.
	ExpiresIn *int `json:"expiresIn" msgpack:"expiresIn"`
	Expired   bool `json:"expired" msgpack:"expired"`
}
