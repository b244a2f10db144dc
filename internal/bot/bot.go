// Package bot wires the telebot event loop to the router, the middleware
// chain and the handler set.
package bot

import (
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/internal/domain"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/internal/i18n"
	"github.com/Proton-105/debtbot/internal/idempotency"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/internal/middleware"
	"github.com/Proton-105/debtbot/internal/ratelimit"
	"github.com/Proton-105/debtbot/internal/state"
	"github.com/Proton-105/debtbot/pkg/config"
)

const handlerTimeout = 30 * time.Second

// Dependencies are the services the bot drives.
type Dependencies struct {
	Ledger      handlers.Ledger
	Registry    ledger.Registry
	FSM         state.StateMachine
	Catalogs    *i18n.Manager
	Idempotency idempotency.Manager
	Limiter     ratelimit.Limiter
	Rules       *ratelimit.Rules
	// Offline skips the getMe call, for tests.
	Offline bool
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	cfg        config.Config
	router     *Router
	dispatcher *Dispatcher
	handlers   *handlers.Set
	errHandler *apperrors.Handler
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.Config, log *slog.Logger, deps Dependencies) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:   cfg.Bot.Token,
		Offline: deps.Offline,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Bot.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.Bot.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Bot.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	locales := handlers.NewLocalizer(deps.Catalogs, deps.Registry, cfg.Ledger.DefaultLanguage, log)
	set := handlers.NewSet(handlers.Deps{
		Ledger:     deps.Ledger,
		Registry:   deps.Registry,
		FSM:        deps.FSM,
		Keyboard:   keyboard.NewBuilder(log),
		Locales:    locales,
		Currencies: domain.NewCurrencySet(cfg.Ledger.Currencies),
		Notifier:   tb,
		Log:        log,
	})

	dispatcher := NewDispatcher(deps.FSM, log)
	b := &Bot{
		telebot:    tb,
		log:        log,
		cfg:        cfg,
		router:     NewRouter(dispatcher, log),
		dispatcher: dispatcher,
		handlers:   set,
		errHandler: apperrors.NewHandler(log, cfg.Sentry.Enabled),
	}

	b.setupRouter(deps, locales)
	b.registerTelebotHandlers()

	return b, nil
}

// Start publishes the command menu and runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.telebot.SetCommands(menu()); err != nil {
		b.log.Warn("failed to publish bot commands", slog.Any("error", err))
	}
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Router exposes the update router.
func (b *Bot) Router() *Router {
	return b.router
}

func (b *Bot) setupRouter(deps Dependencies, locales *handlers.Localizer) {
	r := b.router

	r.Use(RecoveryMiddleware(b.log))
	r.Use(LoggingMiddleware(b.log, handlerTimeout))
	r.Use(middleware.Idempotency(deps.Idempotency, b.cfg.Idempotency.TTL, b.log))
	r.Use(ErrorHandlingMiddleware(b.errHandler, locales, b.log))
	if deps.Limiter != nil && deps.Rules != nil {
		r.Use(middleware.RateLimit(deps.Limiter, deps.Rules, b.log))
	}
	r.Use(ChatRegistrationMiddleware(deps.Registry, b.log))
	r.Use(middleware.Metrics)

	h := b.handlers
	r.RegisterCommand(CommandStart, h.Start)
	r.RegisterCommand(CommandHelp, h.Help)
	r.RegisterCommand(CommandRegister, h.Register)
	r.RegisterCommand(CommandLang, h.Language)
	r.RegisterCommand(CommandPing, h.Ping)
	r.RegisterCommand(CommandExpense, h.Expense)
	r.RegisterCommand(CommandDebts, h.Debts)
	r.RegisterCommand(CommandDebtsToMe, h.DebtsToMe)
	r.RegisterCommand(CommandMyDebts, h.MyDebts)
	r.RegisterCommand(CommandPayDebt, h.PayDebt)
	r.RegisterCommand(CommandCancel, h.Cancel)

	r.RegisterCallback(keyboard.ActionExpenseToggle, h.OnExpenseToggle)
	r.RegisterCallback(keyboard.ActionExpenseSplit, h.OnExpenseSplit)
	r.RegisterCallback(keyboard.ActionConvertPick, h.OnConvertPick)
	r.RegisterCallback(keyboard.ActionConvertTo, h.OnConvertTo)
	r.RegisterCallback(keyboard.ActionPayConvert, h.OnPayConvert)
	r.RegisterCallback(keyboard.ActionPayCurrency, h.OnPayCurrency)
	r.RegisterCallback(keyboard.ActionPayStart, h.OnPayStart)
	r.RegisterCallback(keyboard.ActionLanguage, h.OnLanguage)

	b.dispatcher.RegisterStateHandler(state.StatePaymentAwaitingAmount, h.OnPaymentAmount)
}

func (b *Bot) registerTelebotHandlers() {
	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}

func menu() []telebot.Command {
	out := make([]telebot.Command, 0, len(Commands))
	for _, cmd := range Commands {
		out = append(out, telebot.Command{Text: cmd.Name[1:], Description: cmd.Description})
	}
	return out
}
