package apperror

// Code is a stable identifier for a failure. It appears in logs and in the
// published opportunity stream, so values never change once shipped.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Chain access.
const (
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeGasOracleFailed          Code = "GAS_ORACLE_FAILED"
	CodeCircuitOpen              Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen          Code = "CIRCUIT_HALF_OPEN"
)

// Pools and market data.
const (
	CodeMarketDataUnavailable Code = "MARKET_DATA_UNAVAILABLE"
	CodePoolQueryFailed       Code = "POOL_QUERY_FAILED"
	CodeMarketsFeedFailed     Code = "MARKETS_FEED_FAILED"
	CodeInvalidPool           Code = "INVALID_POOL"
)

// Pricing and routing math.
const (
	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"
	CodeInvalidPrices      Code = "INVALID_PRICES"
	CodeOptimizerFailed    Code = "OPTIMIZER_FAILED"
)

// Publishing.
const (
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeSinkPublishFailed        Code = "SINK_PUBLISH_FAILED"
	CodeJournalWriteError        Code = "JOURNAL_WRITE_ERROR"
)

// Kind says who can act on a failure.
type Kind uint8

const (
	// KindInternal is a bug or an invariant violation.
	KindInternal Kind = iota
	// KindInput means bad configuration, markets or arguments.
	KindInput
	// KindExternal is a node, gas station or feed failure. Usually transient.
	KindExternal
	// KindNumeric is overflow or a degenerate price vector.
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindExternal:
		return "external"
	case KindNumeric:
		return "numeric"
	}
	return "internal"
}

type entry struct {
	message string
	kind    Kind
}

var catalog = map[Code]entry{
	CodeInvalidInput:       {"Invalid input provided", KindInput},
	CodeInvalidState:       {"Invalid state for this operation", KindInternal},
	CodeConfigurationError: {"Configuration error", KindInput},
	CodeInternalError:      {"Internal error", KindInternal},
	CodeUnknownError:       {"An unknown error occurred", KindInternal},

	CodeEthereumConnectionFailed: {"Failed to connect to Ethereum node", KindExternal},
	CodeEthereumSubscribeFailed:  {"Failed to subscribe to new heads", KindExternal},
	CodeEthereumRPCError:         {"Ethereum RPC call failed", KindExternal},
	CodeGasOracleFailed:          {"Gas price oracle failed", KindExternal},
	CodeCircuitOpen:              {"Circuit breaker is open", KindExternal},
	CodeCircuitHalfOpen:          {"Circuit breaker is half-open", KindExternal},

	CodeMarketDataUnavailable: {"Market data unavailable", KindExternal},
	CodePoolQueryFailed:       {"Pool query failed", KindExternal},
	CodeMarketsFeedFailed:     {"Failed to load markets", KindInput},
	CodeInvalidPool:           {"Invalid pool definition", KindInput},

	CodeArithmeticOverflow: {"Arithmetic overflow", KindNumeric},
	CodeInvalidPrices:      {"Invalid price vector", KindNumeric},
	CodeOptimizerFailed:    {"Optimization failed", KindNumeric},

	CodeWebSocketConnectionError: {"WebSocket connection error", KindExternal},
	CodeWebSocketClosed:          {"WebSocket connection closed", KindExternal},
	CodeWebSocketSendError:       {"Failed to send WebSocket message", KindExternal},
	CodeSinkPublishFailed:        {"Failed to publish opportunities", KindExternal},
	CodeJournalWriteError:        {"Failed to write opportunity journal", KindInternal},
}

// Kind reports the kind registered for c. Unregistered codes are internal.
func (c Code) Kind() Kind {
	return catalog[c].kind
}
