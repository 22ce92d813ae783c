package hooks

import (
	"context"

	"settlement/internal/app/model"
	"settlement/internal/app/service/riskgate"
)

// Hook interface implementation
var _ Hook = (*EthereumHook)(nil)

type EthereumHook struct {
	chainHook
}

func NewEthereumHook(features FeatureChecker, risk Assessor, notifier Notifier) *EthereumHook {
	return &EthereumHook{
		chainHook: newChainHook("ethereum", "ETH", features, risk, notifier),
	}
}

// Risk adds the log index to the assessment fields; ERC-20 transfers share a
// tx hash and are only distinct per log entry.
func (h *EthereumHook) Risk(ctx context.Context, tx *model.Transaction) riskgate.Verdict {
	fields := map[string]string{
		"network": h.network,
	}
	if txHash, ok := tx.Meta["tx_hash"]; ok {
		fields["tx_hash"] = txHash
	}
	if logIndex, ok := tx.Meta["log_index"]; ok {
		fields["log_index"] = logIndex
	}
	return h.risk.Assess(ctx, tx, fields)
}
