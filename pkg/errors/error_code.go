package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeConfig             ErrorCode = 100
	ErrCodeInvalidParameter   ErrorCode = 101
	ErrCodeInvalidOrder       ErrorCode = 102
	ErrCodeInvalidCandle      ErrorCode = 103
	ErrCodeInvalidTimeframe   ErrorCode = 104
	ErrCodeInvalidSignal      ErrorCode = 105
	ErrCodeMissingParameter   ErrorCode = 106
	ErrCodeInvalidVersion     ErrorCode = 107
	ErrCodeUnsupportedVenue   ErrorCode = 108
	ErrCodeInvalidCalendar    ErrorCode = 109
	ErrCodeInvalidWindowSize  ErrorCode = 110
	ErrCodeInvalidStrategy    ErrorCode = 111
	ErrCodeInvalidIsolation   ErrorCode = 112
	ErrCodeInvalidOrderType   ErrorCode = 113
	ErrCodeInvalidCurrency    ErrorCode = 114
	ErrCodeInvalidAggregation ErrorCode = 115

	// Data errors (200-299)
	ErrCodeDataGap             ErrorCode = 200
	ErrCodeDataNotFound        ErrorCode = 201
	ErrCodeFeedExhausted       ErrorCode = 202
	ErrCodeInsufficientHistory ErrorCode = 203
	ErrCodeOutOfOrderBar       ErrorCode = 204
	ErrCodeDuplicateBar        ErrorCode = 205

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302
	ErrCodeWindowOutOfRange       ErrorCode = 303
	ErrCodeWindowShrink           ErrorCode = 304

	// Order errors (400-499)
	ErrCodeOrderTooSmall    ErrorCode = 400
	ErrCodeOrderExpired     ErrorCode = 401
	ErrCodeSizingFailed     ErrorCode = 402
	ErrCodeOrderNotFound    ErrorCode = 403
	ErrCodeSignalDuplicate  ErrorCode = 404
	ErrCodeCreationFailed   ErrorCode = 405
	ErrCodeUnknownOrderKind ErrorCode = 406

	// Broker errors (500-599)
	ErrCodeTransientVenue     ErrorCode = 500
	ErrCodeOrderRejected      ErrorCode = 501
	ErrCodeInvariantViolation ErrorCode = 502
	ErrCodePositionNotFound   ErrorCode = 503
	ErrCodeInsufficientFunds  ErrorCode = 504
	ErrCodeNoBrokerForVenue   ErrorCode = 505
	ErrCodeLotSizeUnknown     ErrorCode = 506
	ErrCodePriceUnavailable   ErrorCode = 507

	// Engine errors (600-699)
	ErrCodeEngineStateNil    ErrorCode = 600
	ErrCodeEngineInitFailed  ErrorCode = 601
	ErrCodeEngineNoFeed      ErrorCode = 602
	ErrCodeEngineNoStrategy  ErrorCode = 603
	ErrCodeEngineStopped     ErrorCode = 604
	ErrCodeClockNotAdvancing ErrorCode = 605

	// Persistence errors (700-799)
	ErrCodeStoreQueryFailed ErrorCode = 700
	ErrCodeStoreWriteFailed ErrorCode = 701
	ErrCodeStoreInitFailed  ErrorCode = 702
	ErrCodeStoreExportFailed ErrorCode = 703
)
