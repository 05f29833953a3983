package exception

import "errors"

var (
	ErrPortfolioNoDialer      = errors.New("portfolio: quote feed not configured")
	ErrPortfolioInvalidHandle = errors.New("portfolio: invalid row handle")
	ErrPortfolioUnknownKind   = errors.New("portfolio: row has no instrument kind")
	ErrNettingFailed          = errors.New("netting: failed")
	ErrNettingZeroMultiplier  = errors.New("netting: zero multiplier")
)
