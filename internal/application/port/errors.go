package port

import "errors"

var (
	ErrAlreadyWatching = errors.New("symbol already in watchlist")
	ErrNotWatching     = errors.New("symbol not in watchlist")
)
