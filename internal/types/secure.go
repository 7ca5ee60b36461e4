package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (gateway instance tokens, Stripe keys,
// the cron and setup secrets). It overrides String() and MarshalJSON() to
// return a redacted placeholder.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely
// needed (e.g., building an Authorization header).
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to the call sites that actually transmit the credential.
func (s SecretString) Unmask() string {
	return string(s)
}

// Equal performs a plain equality check against another secret. The cron
// and admin-setup gates are bearer-equality checks, not a cryptographic
// protocol; empty secrets never match anything (fails closed).
func (s SecretString) Equal(other string) bool {
	return s != "" && string(s) == other
}
