package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims accepted by the gateway.
// Tokens are issued by the external auth service and verified here offline; the gateway
// only reads the claims it needs to identify the connecting user.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the unique identifier of the authenticated user.
	ID string `json:"id"`

	// Username is the login name of the user, used as a display-name fallback.
	Username string `json:"username,omitempty"`

	// Email is the user's email address, used as the last display-name fallback.
	Email string `json:"email,omitempty"`
}
