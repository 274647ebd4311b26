package services

import (
	"log/slog"

	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
)

// Services wires every service over one store.
type Services struct {
	Ledger         *LedgerService
	Transactions   *TransactionService
	Sessions       *SessionService
	Charging       *ChargingService
	Reconciliation *ReconciliationService
	Payments       *PaymentService
	Withdrawals    *WithdrawalService
}

func New(store repository.Store, gw gateway.Gateway, n notify.Notifier, jobs Dispatcher, cfg Settings, log *slog.Logger) *Services {
	if log == nil {
		log = slog.Default()
	}
	if jobs == nil {
		jobs = Inline{}
	}
	e := env{store: store, cfg: cfg.withDefaults(), log: log, notifier: n, jobs: jobs}

	ledger := &LedgerService{env: e}
	txns := &TransactionService{env: e}
	sessions := &SessionService{env: e}
	charging := &ChargingService{env: e}
	return &Services{
		Ledger:       ledger,
		Transactions: txns,
		Sessions:     sessions,
		Charging:     charging,
		Reconciliation: &ReconciliationService{
			env: e, gw: gw, txns: txns, sessions: sessions, ledger: ledger, charging: charging,
		},
		Payments:    &PaymentService{env: e, gw: gw, txns: txns, sessions: sessions},
		Withdrawals: &WithdrawalService{env: e, rail: gw, txns: txns, ledger: ledger},
	}
}
