package order

import "fmt"

// RejectCode classifies why an Evaluate poll declined to produce terms.
type RejectCode int

const (
	RejectBalanceInsufficient RejectCode = iota + 1
	RejectAssetUnsupported
	RejectOrderExpired
)

// String returns the wire label the venue expects for a rejection.
func (c RejectCode) String() string {
	switch c {
	case RejectBalanceInsufficient:
		return "BALANCE_INSUFFICIENT"
	case RejectAssetUnsupported:
		return "ASSET_UNSUPPORTED"
	case RejectOrderExpired:
		return "ORDER_EXPIRED"
	default:
		return fmt.Sprintf("REJECT_UNKNOWN(%d)", int(c))
	}
}

// Rejected is the evaluation outcome when the order is not currently
// fillable. Expiry is terminal; the other codes can clear on a later poll.
type Rejected struct {
	Code   RejectCode
	Detail string
}

func (r *Rejected) Error() string {
	if r.Detail == "" {
		return "order rejected: " + r.Code.String()
	}
	return "order rejected: " + r.Code.String() + ": " + r.Detail
}

// Terminal reports whether later polls can no longer succeed.
func (r *Rejected) Terminal() bool {
	return r.Code == RejectOrderExpired
}
