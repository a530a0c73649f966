package backing

import (
	"errors"
	"fmt"
	"math/big"
)

// Access-control and precondition errors. All of these abort the call with no
// partial state change; the caller must correct the input and retry.
var (
	ErrCallerNotLedger           = errors.New("backing: caller is not the trusted ledger")
	ErrCallerNotInstance         = errors.New("backing: caller is not a recognized instance")
	ErrCallerNotBacker           = errors.New("backing: caller is not the instance backer")
	ErrCallerNotAdmin            = errors.New("backing: caller is not the factory admin")
	ErrCallerNotFactory          = errors.New("backing: caller is not the factory")
	ErrAmountMismatch            = errors.New("backing: deposit amount does not equal the required commitment")
	ErrNotHumanAccount           = errors.New("backing: depositor is not an individual account")
	ErrBackingOnBehalfDisallowed = errors.New("backing: operator, source and token identity must coincide")
	ErrUnsupportedAsset          = errors.New("backing: backing asset is not supported")
	ErrInstanceAlreadyDeployed   = errors.New("backing: instance address already in use for this backer")
	ErrDepositInProgress         = errors.New("backing: deposit handling already in progress")
	ErrUnknownInstance           = errors.New("backing: no instance deployed at this address")
)

// Timing errors. Recoverable by waiting or by choosing a different action.
var (
	ErrLBPAlreadyCreated   = errors.New("backing: pool already created for this instance")
	ErrPoolNotCreated      = errors.New("backing: pool has not been created yet")
	ErrOrderNotYetFilled   = errors.New("backing: order neither filled nor expired yet")
	ErrOrderAlreadySettled = errors.New("backing: order already settled at the venue")
	ErrOrderUidIsTheSame   = errors.New("backing: recomputed order uid is unchanged")
)

// InsufficientBackingAssetError reports a disagreement between the venue's
// fill report and the asset actually held by the instance.
type InsufficientBackingAssetError struct {
	Have *big.Int
	Want *big.Int
}

func (e *InsufficientBackingAssetError) Error() string {
	return fmt.Sprintf("backing: backing asset balance insufficient: have %s, want %s", e.Have, e.Want)
}

// LockedError reports a release attempt before the instance unlock and before
// any global override.
type LockedError struct {
	Until int64 // unix seconds
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("backing: pool tokens locked until %d", e.Until)
}
