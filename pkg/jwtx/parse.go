package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrAlgMismatch  = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID   = errors.New("jwtx: unknown kid")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// KeyLookup resolves the verification key for a kid. It should return an
// error wrapping ErrNoKey when the kid is unknown or no longer verifiable.
type KeyLookup func(kid string) (VerificationKey, error)

// ParseOptions captures the expectations Parse enforces besides the
// signature.
type ParseOptions struct {
	// Issuer the token must carry. Empty means "don't care".
	Issuer string

	// Now overrides the clock used for exp and iat checks.
	Now func() time.Time

	// Leeway allows small clock skew when validating exp and iat.
	Leeway time.Duration
}

// Parse verifies a compact JWT and returns its claims. The key is chosen by
// the kid header and its algorithm comes from the key, never the token: a
// header alg that disagrees with the key is ErrAlgMismatch.
func Parse(token string, lookup KeyLookup, opts ParseOptions) (Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(SupportedAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}

	var claims Claims
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrMalformed)
		}

		vk, err := lookup(kid)
		if err != nil {
			if errors.Is(err, ErrNoKey) {
				return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
			}
			return nil, err
		}

		if vk.Alg != t.Method.Alg() {
			return nil, fmt.Errorf("%w: header %s, key %s", ErrAlgMismatch, t.Method.Alg(), vk.Alg)
		}
		return vk.Key, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}
	return claims, nil
}

// classify maps jwt library errors onto this package's sentinels.
func classify(err error) error {
	for _, own := range []error{ErrMalformed, ErrUnknownKID, ErrAlgMismatch} {
		if errors.Is(err, own) {
			return err
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuer, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	default:
		return err
	}
}
