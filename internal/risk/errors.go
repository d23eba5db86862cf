package risk

import "errors"

var (
	ErrCircuitBreaker = errors.New("daily loss circuit breaker tripped")
	ErrPositionLimit  = errors.New("open position limit reached")
	ErrSectorLimit    = errors.New("sector concentration limit reached")
	ErrNoPosition     = errors.New("no open position")
	ErrInvalidQty     = errors.New("quantity must be positive")
)
