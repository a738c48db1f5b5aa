// Package remote provides UI-context wallet handles. Every operation
// crosses the bridge to the page executor; nothing here touches a provider
// object directly.
package remote

import "time"

// Per-operation timeout budgets. Cheap reads get tight budgets; anything
// that can pop a wallet prompt waits for the user.
const (
	budgetConnect          = 30 * time.Second
	budgetChainID          = 15 * time.Second
	budgetSwitchChain      = 30 * time.Second
	budgetPersonalSign     = 60 * time.Second
	budgetSignTypedData    = 60 * time.Second
	budgetSendTransaction  = 120 * time.Second
	budgetSignMessage      = 30 * time.Second
	budgetSignTransactions = 60 * time.Second
	budgetDisconnect       = 10 * time.Second
)
