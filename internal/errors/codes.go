// Package errors provides structured error handling for vector-db.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors
//   - 2XX: persistence errors
//   - 3XX: upstream (embedder) errors
//   - 4XX: validation and lookup errors
//   - 5XX: internal and scheduler errors
package errors

// Kind classifies an error at the core boundary. The HTTP layer maps kinds
// to status codes; services branch on kinds to decide retries.
type Kind string

const (
	// KindNotFound indicates a missing library, document, or chunk id.
	KindNotFound Kind = "NOT_FOUND"
	// KindParentNotFound indicates the parent of a to-be-created child is absent.
	KindParentNotFound Kind = "PARENT_NOT_FOUND"
	// KindIntegrityViolation indicates a dangling reference or duplicated id.
	KindIntegrityViolation Kind = "INTEGRITY_VIOLATION"
	// KindDimensionMismatch indicates a vector length disagrees with the index dimension.
	KindDimensionMismatch Kind = "DIMENSION_MISMATCH"
	// KindZeroVector indicates normalization was requested on a zero vector.
	KindZeroVector Kind = "ZERO_VECTOR"
	// KindUnknownIndexType indicates an index_type outside {flat, ivf, hnsw}.
	KindUnknownIndexType Kind = "UNKNOWN_INDEX_TYPE"
	// KindValidation indicates malformed input that never reached the index.
	KindValidation Kind = "VALIDATION"
	// KindEmbedderError indicates the upstream embedder failed.
	KindEmbedderError Kind = "EMBEDDER_ERROR"
	// KindPersistenceError indicates a store read or write failed.
	KindPersistenceError Kind = "PERSISTENCE_ERROR"
	// KindCancelled indicates a queued task was cancelled before it started.
	KindCancelled Kind = "CANCELLED"
	// KindTimeout indicates the caller's deadline expired while waiting.
	KindTimeout Kind = "TIMEOUT"
	// KindConfig indicates invalid or missing configuration.
	KindConfig Kind = "CONFIG"
	// KindInternal indicates an unexpected internal failure.
	KindInternal Kind = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigMissing = "ERR_102_CONFIG_MISSING"

	// Persistence errors (200-299)
	ErrCodeStoreRead   = "ERR_201_STORE_READ"
	ErrCodeStoreWrite  = "ERR_202_STORE_WRITE"
	ErrCodeStoreLocked = "ERR_203_STORE_LOCKED"
	ErrCodeCorruptBlob = "ERR_204_CORRUPT_BLOB"
	ErrCodeStoreClosed = "ERR_205_STORE_CLOSED"

	// Upstream errors (300-399)
	ErrCodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	ErrCodeEmbedderRequest     = "ERR_302_EMBEDDER_REQUEST"

	// Validation and lookup errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch  = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeZeroVector         = "ERR_403_ZERO_VECTOR"
	ErrCodeUnknownIndexType   = "ERR_404_UNKNOWN_INDEX_TYPE"
	ErrCodeNotFound           = "ERR_405_NOT_FOUND"
	ErrCodeParentNotFound     = "ERR_406_PARENT_NOT_FOUND"
	ErrCodeIntegrityViolation = "ERR_407_INTEGRITY_VIOLATION"

	// Internal and scheduler errors (500-599)
	ErrCodeInternal  = "ERR_501_INTERNAL"
	ErrCodeCancelled = "ERR_502_CANCELLED"
	ErrCodeTimeout   = "ERR_503_TIMEOUT"
)

// kindFromCode maps an error code to its kind.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeConfigMissing:
		return KindConfig
	case ErrCodeStoreRead, ErrCodeStoreWrite, ErrCodeStoreLocked, ErrCodeCorruptBlob, ErrCodeStoreClosed:
		return KindPersistenceError
	case ErrCodeEmbedderUnavailable, ErrCodeEmbedderRequest:
		return KindEmbedderError
	case ErrCodeInvalidInput:
		return KindValidation
	case ErrCodeDimensionMismatch:
		return KindDimensionMismatch
	case ErrCodeZeroVector:
		return KindZeroVector
	case ErrCodeUnknownIndexType:
		return KindUnknownIndexType
	case ErrCodeNotFound:
		return KindNotFound
	case ErrCodeParentNotFound:
		return KindParentNotFound
	case ErrCodeIntegrityViolation:
		return KindIntegrityViolation
	case ErrCodeCancelled:
		return KindCancelled
	case ErrCodeTimeout:
		return KindTimeout
	default:
		return KindInternal
	}
}

// isRetryableCode reports whether an error code represents a transient
// condition worth retrying. Embedder failures are retried by the embed
// wrapper; store reads and writes get one retry at the service layer.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeStoreRead, ErrCodeStoreWrite, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
