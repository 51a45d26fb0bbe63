// Package payment abstracts the out-of-pocket payment gateway used at
// discharge settlement. Orders are created server-side and the client
// completes checkout; the callback signature is verified before a payment
// is marked completed.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order is a gateway-side payment order awaiting client checkout.
type Order struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
	Receipt  string
}

// Gateway creates payment orders and verifies completion callbacks.
type Gateway interface {
	// CreateOrder registers an order with the gateway for the given amount.
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*Order, error)

	// VerifySignature reports whether the checkout callback signature is
	// authentic for the given order and payment ids.
	VerifySignature(orderID, paymentID, signature string) bool
}
