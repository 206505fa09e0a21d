package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature delivers exactly one notification once the signature
	// reaches the commitment level, then closes the channel.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureSubscribe message.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // non-nil when the transaction failed on chain
}
