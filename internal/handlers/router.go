package handlers

import (
	"net/http"
	"strings"

	"cacaowallet/internal/config"
	"cacaowallet/internal/db"
	"cacaowallet/internal/metrics"
	"cacaowallet/internal/middleware"
	"cacaowallet/internal/store"
	"cacaowallet/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps are the collaborators of Handler.
type Deps struct {
	TxRunner          db.TxRunner
	Config            config.Config
	Users             UserStore
	Wallets           WalletStore
	Transactions      TransactionStore
	PhysicalDeposits  PhysicalDepositStore
	CollectionCenters CollectionCenterStore
	PaymentMethods    PaymentMethodStore
	Treasury          TreasuryStore
	Admin             AdminStore
	Audit             AuditStore
	Settlement        SettlementService
	Oracle            SettlementOracle
	Hub               *websocket.Hub
}

type Handler struct {
	txRunner          db.TxRunner
	cfg               config.Config
	users             UserStore
	wallets           WalletStore
	transactions      TransactionStore
	physicalDeposits  PhysicalDepositStore
	collectionCenters CollectionCenterStore
	paymentMethods    PaymentMethodStore
	treasury          TreasuryStore
	admin             AdminStore
	audit             AuditStore
	settlement        SettlementService
	oracle            SettlementOracle
	hub               *websocket.Hub
}

func New(d Deps) *Handler {
	hub := d.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	return &Handler{
		txRunner:          d.TxRunner,
		cfg:               d.Config,
		users:             d.Users,
		wallets:           d.Wallets,
		transactions:      d.Transactions,
		physicalDeposits:  d.PhysicalDeposits,
		collectionCenters: d.CollectionCenters,
		paymentMethods:    d.PaymentMethods,
		treasury:          d.Treasury,
		admin:             d.Admin,
		audit:             d.Audit,
		settlement:        d.Settlement,
		oracle:            d.Oracle,
		hub:               hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.Get("/wallet", h.GetWallet)
		r.Get("/wallet/self-check", h.SelfCheck)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/{id}", h.GetTransaction)
		r.Get("/reserve", h.GetReserve)
		r.Get("/collection-centers", h.ListCollectionCenters)
		r.Get("/config/prices", h.GetPrices)

		r.Post("/quotes/buy", h.QuoteBuy)
		r.Post("/quotes/sell", h.QuoteSell)
		r.Post("/deposits", h.CreateDeposit)
		r.Post("/withdrawals", h.CreateWithdrawal)
		r.Post("/fiat-deposits", h.CreateFiatDeposit)
		r.Post("/fiat-withdrawals", h.CreateFiatWithdrawal)
		r.Post("/cacao-withdrawals", h.CreateCacaoWithdrawal)
		r.Post("/conversions", h.CreateConversion)
		r.Post("/physical-deposits", h.CreatePhysicalDeposit)
		r.Get("/physical-deposits", h.ListPhysicalDeposits)

		r.Post("/payment-methods", h.CreatePaymentMethod)
		r.Get("/payment-methods", h.ListPaymentMethods)

		r.Get("/users/username/{username}", h.GetUserByUsername)
		r.Get("/users/email/{email}", h.GetUserByEmail)

		// settlement operators; the oracle checks the CanSettle role
		r.Get("/pending-transactions", h.ListPending)
		r.Post("/transactions/{id}/approve", h.ApproveTransaction)
		r.Post("/transactions/{id}/reject", h.RejectTransaction)
		r.Put("/physical-deposits/{id}/verify", h.VerifyPhysicalDeposit)
	})

	router.Get("/ws/balances", h.WSBalances)
	router.Get("/ws/operator", h.WSOperator)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/users", h.AdminListUsers)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanSettle)).Get("/transactions", h.AdminListTransactions)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageAdmins)).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageAdmins)).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageAdmins)).Put("/wallets/{userID}/active", h.SetWalletActive)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Post("/maintenance-fees", h.ChargeMaintenanceFee)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Get("/treasury", h.GetTreasury)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Get("/treasury/withdrawals", h.ListTreasuryWithdrawals)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Post("/treasury/withdrawals", h.WithdrawTreasury)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Get("/reserve/stock", h.ListStockIntakes)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageTreasury)).Post("/reserve/stock", h.IntakeStock)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManagePrices)).Put("/config/prices", h.UpdatePrices)
	})

	router.Handle("/metrics", metrics.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
