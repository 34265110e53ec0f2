package types

// SecretString holds a sensitive value (API tokens, connection strings) and
// redacts itself in every text or JSON rendering. Call Unmask only at the
// point the raw value is handed to a driver or HTTP client.
type SecretString string

const redacted = "***REDACTED***"

// String implements fmt.Stringer with a redacted placeholder.
func (s SecretString) String() string { return redacted }

// MarshalJSON renders the redacted placeholder, keeping secrets out of
// config dumps and structured logs.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the raw plaintext value.
func (s SecretString) Unmask() string { return string(s) }

// IsSet reports whether the secret holds a non-empty value.
func (s SecretString) IsSet() bool { return s != "" }
