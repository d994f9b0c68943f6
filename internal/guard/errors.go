package guard

import (
	"errors"

	"github.com/sentinel-amm/sentinel/internal/auction"
	"github.com/sentinel-amm/sentinel/internal/breaker"
	"github.com/sentinel-amm/sentinel/internal/insurance"
	"github.com/sentinel-amm/sentinel/internal/ledger"
	"github.com/sentinel-amm/sentinel/internal/oracle"
	"github.com/sentinel-amm/sentinel/internal/registry"
)

// Guard-level errors.
var (
	ErrNotOwner = errors.New("caller is not the owner")
	ErrPaused   = errors.New("system is paused")
)

// The full error surface of the guarded entry points, re-exported so
// callers match against one package.
var (
	ErrPoolNotRegistered = registry.ErrNotRegistered
	ErrAuctionNotFound   = auction.ErrNotFound
	ErrAuctionEnded      = auction.ErrEnded
	ErrAuctionNotEnded   = auction.ErrNotEnded
	ErrAlreadySettled    = auction.ErrAlreadySettled
	ErrBidBelowMinimum   = auction.ErrBidBelowMinimum
	ErrBidNotLeading     = auction.ErrBidNotLeading
	ErrZeroDeposit       = insurance.ErrZeroDeposit
	ErrLossBelowMinimum  = insurance.ErrLossBelowMinimum
	ErrFundEmpty         = insurance.ErrFundEmpty
	ErrEvidenceEmpty     = insurance.ErrEvidenceEmpty
	ErrNotPaused         = breaker.ErrNotPaused
	ErrOracleNotAllowed  = oracle.ErrSignerNotAllowed
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)
