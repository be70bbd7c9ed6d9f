package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Navigation
	CodeInvalidArgument:      "Invalid argument",
	CodeBlockOutOfRange:      "Block is beyond the known chain tip",
	CodeNavigationSuperseded: "Navigation superseded by a newer request",

	// Block source
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to new blocks",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",
	CodeUpstreamTransient:        "Upstream node temporarily failed",
	CodeInvalidBlock:             "Block data is malformed",

	// L1 origin enrichment
	CodeEnrichmentFailed:   "Failed to resolve L1 origin",
	CodeContractCallFailed: "Smart contract call failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Snapshot persistence
	CodeSnapshotCorrupt:            "Persisted snapshot is corrupt",
	CodeSnapshotVersionUnsupported: "Persisted snapshot version is not supported",
	CodeStorageError:               "Storage operation failed",

	// Cache errors
	CodeCacheMiss: "Cache miss",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
