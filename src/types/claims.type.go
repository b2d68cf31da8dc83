package types

import "github.com/golang-jwt/jwt/v4"

// DownloadClaims is the payload of the signed link sent to email recipients.
type DownloadClaims struct {
	PaymentReference string `json:"ref"`
	DownloadCode     string `json:"code"`
	Project          string `json:"project,omitempty"`
	jwt.RegisteredClaims
}
