/*
Package token mints and validates the short-lived access tokens that gate
HLS playlists and segments.

A token is an HS256 JWT carrying the job id, the subject it was issued to
and an expiry. The signing key is derived from STREAM_TOKEN_SECRET with
HKDF-SHA256, so the raw secret never signs anything directly. Tokens are
stateless: nothing is stored server-side and the only revocation is expiry.

	issuer, err := token.NewIssuer([]byte(secret), token.WithTTL(15*time.Minute))
	tok, exp, err := issuer.Mint(job.ID, userID)
	claims, err := issuer.Validate(tok, job.ID)
*/
package token
