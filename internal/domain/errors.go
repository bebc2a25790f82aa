package domain

import "fmt"

// DomainError represents a domain-specific error with a stable code that is
// safe to surface to API clients.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUnavailable   = "UPSTREAM_UNAVAILABLE"
)

// Stable per-resource error codes surfaced in API responses. These are part
// of the wire contract; clients match on them.
const (
	ErrCodeInvalidContentType    = "EMBED_3001"
	ErrCodeEmbeddingNotFound     = "EMBED_3007"
	ErrCodeVectorStoreDown       = "EMBED_5001"
	ErrCodeEmbeddingProviderDown = "EMBED_5002"
	ErrCodeManifestNotFound      = "MANIFEST_4004"
	ErrCodeInvalidPolicy         = "POLICY_4001"
)

// Validation errors
var (
	ErrInvalidContentType     = NewDomainError(ErrCodeInvalidContentType, "invalid content type")
	ErrInvalidMaxContextItems = NewDomainError(ErrCodeInvalidPolicy, "maxContextItems must be positive")
	ErrEmptyEmbeddingText     = NewDomainError(ErrCodeValidation, "content has no embeddable text")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrEmbeddingNotFound = NewDomainError(ErrCodeEmbeddingNotFound, "Embedding not found")
	ErrManifestNotFound  = NewDomainError(ErrCodeManifestNotFound, "preview manifest not found")
	ErrPolicyNotFound    = NewDomainError(ErrCodeNotFound, "retrieval policy not found")
	ErrUserNotFound      = NewDomainError(ErrCodeNotFound, "user not found")
	ErrAPIKeyNotFound    = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrUserAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// Upstream errors
var (
	ErrVectorStoreUnavailable       = NewDomainError(ErrCodeVectorStoreDown, "vector store unavailable")
	ErrEmbeddingProviderUnavailable = NewDomainError(ErrCodeEmbeddingProviderDown, "embedding provider unavailable")
)
