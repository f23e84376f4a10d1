package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/config"
	"github.com/iliyamo/ticketing-marketplace/internal/database"
	"github.com/iliyamo/ticketing-marketplace/internal/handler"
	"github.com/iliyamo/ticketing-marketplace/internal/jobs"
	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/logging"
	"github.com/iliyamo/ticketing-marketplace/internal/mail"
	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/payment"
	"github.com/iliyamo/ticketing-marketplace/internal/queue"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/router"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
	"github.com/iliyamo/ticketing-marketplace/internal/stream"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)

	payCfg := config.LoadPaymentConfig()
	mailCfg := config.LoadMailConfig()
	brokerCfg := config.LoadBrokerConfig()
	jobsCfg := config.LoadJobsConfig()
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, locks and caching run in-process")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Integrations ----
	var gateway payment.DepositGateway = payment.DisabledGateway{}
	if sg := payment.NewStripeGateway(payCfg.StripeSecretKey, payCfg.StripeWebhookSecret, log); sg != nil {
		gateway = sg
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; deposits are disabled")
	}
	bank := payment.NewBankClient(payCfg.BankAPIBaseURL, payCfg.BankAPISecret, payCfg.Currency, payCfg.BankAPITimeout, log)
	sender := mail.NewSender(mailCfg.APIKey, mailCfg.FromEmail, mailCfg.FromName, log)

	notifier := &service.Notifier{Sender: sender, Log: log}
	if brokerCfg.RabbitURL != "" {
		pub := queue.NewPublisher(brokerCfg.RabbitURL, log)
		defer pub.Close()
		notifier.Queue = pub
		go func() {
			if err := queue.StartEmailConsumer(ctx, brokerCfg.RabbitURL, sender, log); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("email consumer stopped")
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set; emails are sent directly")
	}

	ledger, err := stream.NewProducer(brokerCfg.KafkaBrokers, brokerCfg.KafkaTopic, log)
	if err != nil {
		log.WithError(err).Fatal("connect kafka")
	}
	defer ledger.Close()

	locker := lock.New(rdb)

	// ---- Repositories ----
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	profiles := repository.NewProfileRepo(db)
	events := repository.NewEventRepo(db)
	tickets := repository.NewTicketRepo(db)
	wallets := repository.NewWalletRepo(db)
	payouts := repository.NewPayoutRepo(db)
	refunds := repository.NewRefundRepo(db)
	bookings := repository.NewBookingRepo(db)
	reviews := repository.NewReviewRepo(db)
	reports := repository.NewReportRepo(db)
	media := repository.NewMediaRepo(db)
	convs := repository.NewConversationRepo(db)
	audit := repository.NewAuditRepo(db)

	// ---- Services ----
	walletSvc := &service.WalletService{Wallets: wallets, Gateway: gateway, Stream: ledger, Currency: payCfg.Currency, Log: log}
	payoutSvc := &service.PayoutService{
		Wallets:       wallets,
		Payouts:       payouts,
		Users:         users,
		Audit:         audit,
		Bank:          bank,
		Locker:        locker,
		Stream:        ledger,
		Notifier:      notifier,
		Cache:         rdb,
		BanksTTL:      cacheCfg.BanksTTL,
		MinWithdrawal: payCfg.MinWithdrawalMinor,
		Currency:      payCfg.Currency,
		Log:           log,
	}
	refundSvc := &service.RefundService{
		Wallets:  wallets,
		Tickets:  tickets,
		Events:   events,
		Refunds:  refunds,
		Users:    users,
		Audit:    audit,
		Locker:   locker,
		Stream:   ledger,
		Notifier: notifier,
		Currency: payCfg.Currency,
		Log:      log,
	}
	ticketSvc := &service.TicketService{Wallets: wallets, Events: events, Tickets: tickets, Stream: ledger, FeeBPS: payCfg.PlatformFeeBPS, Currency: payCfg.Currency, Log: log}
	eventSvc := &service.EventService{DB: db, Events: events, Audit: audit, Log: log}
	bookingSvc := &service.BookingService{Bookings: bookings, Users: users, Events: events, Wallets: wallets, Stream: ledger, Currency: payCfg.Currency, Log: log}
	reviewSvc := &service.ReviewService{DB: db, Reviews: reviews, Bookings: bookings, Events: events, Tickets: tickets, Audit: audit}
	moderationSvc := &service.ModerationService{
		DB:      db,
		Reports: reports,
		Users:   users,
		Tokens:  tokens,
		Events:  events,
		Reviews: reviews,
		Media:   media,
		Audit:   audit,
		Log:     log,
	}
	adminSvc := &service.AdminService{
		Users:    users,
		Events:   events,
		Payouts:  payouts,
		Refunds:  refunds,
		Reports:  reports,
		Wallets:  wallets,
		Notifier: notifier,
		Log:      log,
	}

	// ---- Jobs ----
	if jobsCfg.Enabled {
		sched, err := jobs.New(jobsCfg, payCfg.DepositExpiry, jobs.Sweeps{
			Deposits: walletSvc, Events: eventSvc, Bookings: bookingSvc, Payouts: payoutSvc,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("schedule jobs")
		}
		sched.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(sctx)
		}()
	}

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Recover(log))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: corsOrigins(),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(metrics.Middleware())
	e.Use(middleware.NewTokenBucket(rlCfg, rdb, log))

	router.RegisterRoutes(e, db, rdb)
	router.Register(e, router.Handlers{
		Auth:       handler.NewAuthHandler(cfg, payCfg.Currency, users, profiles, tokens),
		Profiles:   &handler.ProfileHandler{Profiles: profiles, Reviews: reviews, Media: media, MediaSvc: &service.MediaService{Media: media}},
		Events:     &handler.EventHandler{Svc: eventSvc, Events: events, Tickets: tickets, Sales: ticketSvc},
		Wallet:     &handler.WalletHandler{Wallets: wallets, Deposits: walletSvc, Payouts: payoutSvc},
		Payouts:    &handler.PayoutHandler{Payouts: payouts, Svc: payoutSvc},
		Refunds:    &handler.RefundHandler{Refunds: refunds, Svc: refundSvc},
		Bookings:   &handler.BookingHandler{Bookings: bookings, Svc: bookingSvc},
		Reviews:    &handler.ReviewHandler{Reviews: reviews, Svc: reviewSvc},
		Moderation: &handler.ModerationHandler{Reports: reports, Svc: moderationSvc},
		Conversations: &handler.ConversationHandler{
			Conversations: convs,
			Svc:           &service.ConversationService{Conversations: convs, Users: users},
		},
		Admin: &handler.AdminHandler{Svc: adminSvc, Audit: audit},
	}, cfg.JWTSecret, middleware.NewRedisCache(cacheCfg, rdb))

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}

func corsOrigins() []string {
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		return strings.Split(v, ",")
	}
	return []string{"*"}
}
