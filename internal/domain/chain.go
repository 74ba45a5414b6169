package domain

import "context"

// ChainClient invokes the two settlement instructions on the market
// program, signed by the single backend authority. Both instructions are
// idempotent at the chain layer: the program rejects a second settlement of
// an already-settled market. Implementations classify transport failures as
// transient so the caller's retry policy can distinguish them from program
// rejections.
type ChainClient interface {
	// ApproveProposal commits the proposal tally on-chain and returns the
	// transaction signature after confirmation.
	ApproveProposal(ctx context.Context, marketAddr string, likes, dislikes int) (string, error)

	// FinalizeMarket commits the final outcome and dispute tally on-chain
	// and returns the transaction signature after confirmation. A nil
	// outcome means INVALID.
	FinalizeMarket(ctx context.Context, marketAddr string, outcome *bool, agrees, disagrees int) (string, error)

	// Authority returns the base58 address of the signing authority.
	Authority() string
}
