package ledger

import "errors"

// Business-rule failures. These are reported to callers as values, never
// used for internal control flow, and never indicate a partial write: the
// enclosing unit of work rolls back whenever one is returned.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientLocked = errors.New("insufficient locked funds")
	ErrSameWallet         = errors.New("source and destination wallet are the same")
	ErrNoWallet           = errors.New("wallet does not exist")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrPairInactive       = errors.New("trading pair is missing or inactive")
	ErrProductInactive    = errors.New("product is missing or inactive")
	ErrInvalidOption      = errors.New("trade option is invalid for this pair")
	ErrAmountOutOfRange   = errors.New("amount is outside the allowed range")
	ErrAlreadySettled     = errors.New("trade is already settled")
	ErrNotCancellable     = errors.New("order is not cancellable")
	ErrNotOwner           = errors.New("requester does not own this order")
	ErrSameUser           = errors.New("sender and recipient are the same user")
)
