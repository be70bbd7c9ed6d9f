package apperror

import "net/http"

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Block visualizer error codes
const (
	// Navigation
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeBlockOutOfRange      Code = "BLOCK_OUT_OF_RANGE"
	CodeNavigationSuperseded Code = "NAVIGATION_SUPERSEDED"

	// Block source (L2 and L1 RPC)
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeUpstreamTransient        Code = "UPSTREAM_TRANSIENT"
	CodeInvalidBlock             Code = "INVALID_BLOCK"

	// L1 origin enrichment
	CodeEnrichmentFailed   Code = "L1_ORIGIN_ENRICHMENT_FAILED"
	CodeContractCallFailed Code = "CONTRACT_CALL_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Snapshot persistence
	CodeSnapshotCorrupt            Code = "SNAPSHOT_CORRUPT"
	CodeSnapshotVersionUnsupported Code = "SNAPSHOT_VERSION_UNSUPPORTED"
	CodeStorageError               Code = "STORAGE_ERROR"

	// Cache errors
	CodeCacheMiss Code = "CACHE_MISS"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

var statusCodes = map[Code]int{
	CodeRequiredField:   http.StatusBadRequest,
	CodeInvalidInput:    http.StatusBadRequest,
	CodeInvalidFormat:   http.StatusBadRequest,
	CodeInvalidState:    http.StatusBadRequest,
	CodeValidationError: http.StatusBadRequest,
	CodeInvalidArgument: http.StatusBadRequest,
	CodeBlockOutOfRange: http.StatusBadRequest,
	CodeInvalidBlock:    http.StatusBadRequest,

	CodeNotFound:      http.StatusNotFound,
	CodeBlockNotFound: http.StatusNotFound,

	CodeNavigationSuperseded: http.StatusConflict,

	CodeRateLimitExceeded: http.StatusTooManyRequests,

	CodeServiceTimeout:           http.StatusServiceUnavailable,
	CodeServiceUnavailable:       http.StatusServiceUnavailable,
	CodeUpstreamTransient:        http.StatusServiceUnavailable,
	CodeCircuitOpen:              http.StatusServiceUnavailable,
	CodeEthereumConnectionFailed: http.StatusServiceUnavailable,
	CodeWebSocketConnectionError: http.StatusServiceUnavailable,
}
