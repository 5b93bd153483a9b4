// Package gateway defines the boundary to the external asset custodian. The
// ledger never holds funds itself; every movement of the pooled asset goes
// through this interface, and every call across it is an interaction in the
// checks-effects-interaction sense.
package gateway

import (
	"context"

	"github.com/google/uuid"
)

// Gateway moves units of the pooled asset between external accounts and the
// pool account. Implementations may charge transfer fees, which is why Pull
// reports the amount actually received.
type Gateway interface {
	// Pull transfers up to `requested` units from the depositor into the
	// pool account and returns the amount that actually arrived, which may
	// be less than requested if the custodian skims a transfer fee.
	Pull(ctx context.Context, from uuid.UUID, requested int64) (received int64, err error)

	// Push transfers `amount` units from the pool account to the recipient.
	Push(ctx context.Context, to uuid.UUID, amount int64) error

	// PushForeign transfers `amount` units of an asset other than the
	// pooled one from the pool account to the recipient. Used only by the
	// rescue path; the pooled asset is never movable through it.
	PushForeign(ctx context.Context, asset string, to uuid.UUID, amount int64) error

	// BalanceOf reports the custodian's view of an account's balance in
	// the pooled asset.
	BalanceOf(ctx context.Context, holder uuid.UUID) (int64, error)
}
