package database

// Repositories aggregates every repository the engine needs, wired once at
// startup and threaded through Selector, LifecycleEngine and ChainMonitor.
type Repositories struct {
	PaymentSources *PaymentSourceRepository
	Wallets        *HotWalletRepository
	WalletBases    *WalletBaseRepository
	Transactions   *TransactionRepository
	Requests       *RequestRepository
}

// NewRepositories builds the repository set against a shared client.
func NewRepositories(c *Client) *Repositories {
	return &Repositories{
		PaymentSources: &PaymentSourceRepository{db: c},
		Wallets:        &HotWalletRepository{db: c},
		WalletBases:    &WalletBaseRepository{db: c},
		Transactions:   &TransactionRepository{db: c},
		Requests:       &RequestRepository{db: c},
	}
}
