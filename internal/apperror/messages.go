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

	// Provider / RPC errors
	CodeRPCError:         "RPC call failed",
	CodeConnectionFailed: "Failed to connect to node",
	CodeSubscribeFailed:  "Failed to subscribe to chain events",
	CodeConnectionDead:   "No blocks received within the dead threshold",
	CodeBlockNotFound:    "Block not found",

	// Event pipeline errors
	CodeEventKindMismatch: "Event kind does not match the adapter protocol",
	CodeUnknownPool:       "Pool could not be resolved",
	CodeOutdatedEvent:     "Event metadata is not newer than the stored state",
	CodeReorgDetected:     "Chain reorganization detected",

	// Token registry errors
	CodeIntrospectionFailed: "ERC-20 metadata introspection failed",

	// AMM math / quoting errors
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeInvalidAmount:         "Invalid amount",
	CodePoolNotFound:          "Pool not found",
	CodeQuoteFailed:           "Failed to get quote",
	CodeContractCallFailed:    "Smart contract call failed",

	// Message bus errors
	CodeTimeout:          "Request timed out",
	CodeWorkerFailed:     "Worker unit failed",
	CodeWorkerTerminated: "Worker unit was terminated",
	CodeCancelled:        "Request was cancelled",

	// CEX feed errors
	CodeOrderbookFetchFailed: "Failed to fetch orderbook",
	CodeWebSocketClosed:      "WebSocket connection closed",

	// Cache errors
	CodeCacheMiss:       "Cache miss",
	CodeCacheCorrupted:  "Cache file could not be decoded",
	CodeCacheWriteError: "Cache file could not be written",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
