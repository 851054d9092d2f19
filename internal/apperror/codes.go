package apperror

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

// Market-data engine error codes
const (
	// Provider / RPC errors
	CodeRPCError         Code = "RPC_ERROR"
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeSubscribeFailed  Code = "SUBSCRIBE_FAILED"
	CodeConnectionDead   Code = "CONNECTION_DEAD"
	CodeBlockNotFound    Code = "BLOCK_NOT_FOUND"

	// Event pipeline errors
	CodeEventKindMismatch Code = "EVENT_KIND_MISMATCH"
	CodeUnknownPool       Code = "UNKNOWN_POOL"
	CodeOutdatedEvent     Code = "OUTDATED_EVENT"
	CodeReorgDetected     Code = "REORG_DETECTED"

	// Token registry errors
	CodeIntrospectionFailed Code = "INTROSPECTION_FAILED"

	// AMM math / quoting errors
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodePoolNotFound          Code = "POOL_NOT_FOUND"
	CodeQuoteFailed           Code = "QUOTE_FAILED"
	CodeContractCallFailed    Code = "CONTRACT_CALL_FAILED"

	// Message bus errors
	CodeTimeout          Code = "TIMEOUT"
	CodeWorkerFailed     Code = "WORKER_FAILED"
	CodeWorkerTerminated Code = "WORKER_TERMINATED"
	CodeCancelled        Code = "CANCELLED"

	// CEX feed errors
	CodeOrderbookFetchFailed Code = "ORDERBOOK_FETCH_FAILED"
	CodeWebSocketClosed      Code = "WEBSOCKET_CLOSED"

	// Cache errors
	CodeCacheMiss       Code = "CACHE_MISS"
	CodeCacheCorrupted  Code = "CACHE_CORRUPTED"
	CodeCacheWriteError Code = "CACHE_WRITE_ERROR"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
