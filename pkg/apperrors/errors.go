package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrCacheMiss         = errors.New("cache miss")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrMissingShopID     = errors.New("missing shop id")
	ErrUnsafePipeline    = errors.New("pipeline contains a forbidden stage")
	ErrUnsafeFilterValue = errors.New("filter value failed injection screening")
	ErrStoreUnavailable  = errors.New("document store unavailable")
)
