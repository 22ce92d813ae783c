package hooks

// Hook interface implementation
var _ Hook = (*BitcoinHook)(nil)

type BitcoinHook struct {
	chainHook
}

func NewBitcoinHook(features FeatureChecker, risk Assessor, notifier Notifier) *BitcoinHook {
	return &BitcoinHook{
		chainHook: newChainHook("bitcoin", "BTC", features, risk, notifier),
	}
}
