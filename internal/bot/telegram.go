package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hydra-signals/internal/domain"
	"hydra-signals/internal/job"
	"hydra-signals/internal/tickers"

	tele "gopkg.in/telebot.v3"
)

type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.Signal, error)
}

type SubscriptionStore interface {
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (domain.User, error)
	AddSubscription(ctx context.Context, userID int64, ticker, frequency string) (bool, error)
	RemoveSubscription(ctx context.Context, userID int64, ticker string) (bool, error)
	ListUserTickers(ctx context.Context, userID int64) ([]string, error)
	ListSubscriberChats(ctx context.Context, ticker string) ([]int64, error)
	SetSubscribedAll(ctx context.Context, userID int64, subscribed bool) error
}

type CycleRunner interface {
	RunManual(ctx context.Context) (job.CycleResult, error)
	Status() job.Status
}

const helpText = `Commands:
/subscribe TICKER [15m|1h] — signal notifications for one instrument
/subscribe all — notifications for every instrument
/unsubscribe TICKER | all
/mysubs — your subscriptions
/signals [TICKER] — latest signals
/status — engine status
/run — trigger a processing cycle
/help — this message`

// StartTelegramBot wires the command handlers and begins long polling. It
// returns the notifier the orchestrator fans notifications through, or nil
// when no token is configured.
func StartTelegramBot(token string, adminID int64, signals SignalLister, subs SubscriptionStore, runner CycleRunner, notifyDelay time.Duration) *SignalNotifier {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	notifier := NewSignalNotifier(b, subs, notifyDelay)
	registerHandlers(b, adminID, signals, subs, runner)

	log.Println("Telegram bot started")
	go b.Start()
	return notifier
}

// commandContext is the subset of tele.Context the handlers touch, extracted
// so handlers can run against a stub in tests.
type commandContext interface {
	Args() []string
	Sender() *tele.User
	Send(what interface{}, opts ...interface{}) error
}

func registerHandlers(b *tele.Bot, adminID int64, signals SignalLister, subs SubscriptionStore, runner CycleRunner) {
	b.Handle("/start", func(c tele.Context) error { return handleStart(c, subs) })
	b.Handle("/help", func(c tele.Context) error { return c.Send(helpText) })
	b.Handle("/subscribe", func(c tele.Context) error { return handleSubscribe(c, subs) })
	b.Handle("/unsubscribe", func(c tele.Context) error { return handleUnsubscribe(c, subs) })
	b.Handle("/mysubs", func(c tele.Context) error { return handleMySubs(c, subs) })
	b.Handle("/signals", func(c tele.Context) error { return handleSignals(c, signals) })
	b.Handle("/status", func(c tele.Context) error { return handleStatus(c, runner) })
	b.Handle("/run", func(c tele.Context) error { return handleRun(c, adminID, runner) })
}

func resolveUser(c commandContext, subs SubscriptionStore) (domain.User, error) {
	sender := c.Sender()
	if sender == nil {
		return domain.User{}, errors.New("unable to detect sender")
	}
	return subs.GetOrCreateUser(context.Background(), sender.ID, sender.Username)
}

func handleStart(c commandContext, subs SubscriptionStore) error {
	if _, err := resolveUser(c, subs); err != nil {
		return c.Send(fmt.Sprintf("Registration failed: %v", err))
	}
	return c.Send("Welcome! I track trading signals and their execution.\n\n" + helpText)
}

func handleSubscribe(c commandContext, subs SubscriptionStore) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /subscribe TICKER [15m|1h] or /subscribe all")
	}

	user, err := resolveUser(c, subs)
	if err != nil {
		return c.Send(fmt.Sprintf("Registration failed: %v", err))
	}

	target := strings.ToUpper(strings.TrimSpace(args[0]))
	if target == "ALL" {
		if err := subs.SetSubscribedAll(context.Background(), user.ID, true); err != nil {
			return c.Send(fmt.Sprintf("Subscription failed: %v", err))
		}
		return c.Send("Subscribed to all instruments.")
	}

	if !tickers.Valid(target) {
		return c.Send(fmt.Sprintf("Invalid ticker: %s", target))
	}

	frequency := "15m"
	if len(args) > 1 {
		frequency = strings.ToLower(strings.TrimSpace(args[1]))
		if !isSupportedFrequency(frequency) {
			return c.Send(fmt.Sprintf("Unsupported frequency %s, use one of: %s",
				frequency, strings.Join(domain.SupportedFrequencies, ", ")))
		}
	}

	added, err := subs.AddSubscription(context.Background(), user.ID, target, frequency)
	if err != nil {
		return c.Send(fmt.Sprintf("Subscription failed: %v", err))
	}
	if !added {
		return c.Send(fmt.Sprintf("Already subscribed to %s.", target))
	}
	return c.Send(fmt.Sprintf("Subscribed to %s (%s).", target, frequency))
}

func handleUnsubscribe(c commandContext, subs SubscriptionStore) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /unsubscribe TICKER or /unsubscribe all")
	}

	user, err := resolveUser(c, subs)
	if err != nil {
		return c.Send(fmt.Sprintf("Registration failed: %v", err))
	}

	target := strings.ToUpper(strings.TrimSpace(args[0]))
	if target == "ALL" {
		if err := subs.SetSubscribedAll(context.Background(), user.ID, false); err != nil {
			return c.Send(fmt.Sprintf("Unsubscribe failed: %v", err))
		}
		return c.Send("Unsubscribed from the all-instruments feed.")
	}

	removed, err := subs.RemoveSubscription(context.Background(), user.ID, target)
	if err != nil {
		return c.Send(fmt.Sprintf("Unsubscribe failed: %v", err))
	}
	if !removed {
		return c.Send(fmt.Sprintf("No subscription for %s.", target))
	}
	return c.Send(fmt.Sprintf("Unsubscribed from %s.", target))
}

func handleMySubs(c commandContext, subs SubscriptionStore) error {
	user, err := resolveUser(c, subs)
	if err != nil {
		return c.Send(fmt.Sprintf("Registration failed: %v", err))
	}

	list, err := subs.ListUserTickers(context.Background(), user.ID)
	if err != nil {
		return c.Send(fmt.Sprintf("Error fetching subscriptions: %v", err))
	}

	var lines []string
	if user.SubscribedAll {
		lines = append(lines, "all instruments")
	}
	lines = append(lines, list...)
	if len(lines) == 0 {
		return c.Send("No subscriptions yet. Try /subscribe BTC")
	}
	return c.Send("Your subscriptions:\n" + strings.Join(lines, "\n"))
}

func handleSignals(c commandContext, signals SignalLister) error {
	if signals == nil {
		return c.Send("Signal service unavailable")
	}

	filter := domain.SignalFilter{Limit: 5}
	if args := c.Args(); len(args) > 0 {
		ticker := strings.ToUpper(strings.TrimSpace(args[0]))
		if !tickers.Valid(ticker) {
			return c.Send(fmt.Sprintf("Invalid ticker: %s", ticker))
		}
		filter.Ticker = ticker
	}

	list, err := signals.ListSignals(context.Background(), filter)
	if err != nil {
		return c.Send(fmt.Sprintf("Error fetching signals: %v", err))
	}
	if len(list) == 0 {
		return c.Send("No matching signals right now.")
	}

	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "Latest signals:")
	for _, s := range list {
		lines = append(lines, formatSignalLine(s))
	}
	return c.Send(strings.Join(lines, "\n"))
}

func handleStatus(c commandContext, runner CycleRunner) error {
	if runner == nil {
		return c.Send("Engine not running")
	}
	return c.Send(formatStatus(runner.Status()))
}

func handleRun(c commandContext, adminID int64, runner CycleRunner) error {
	if runner == nil {
		return c.Send("Engine not running")
	}
	sender := c.Sender()
	if adminID != 0 && (sender == nil || sender.ID != adminID) {
		return c.Send("Manual runs are restricted to the admin.")
	}

	result, err := runner.RunManual(context.Background())
	if err != nil {
		if errors.Is(err, job.ErrCycleInProgress) {
			return c.Send("A cycle is already running, try again shortly.")
		}
		return c.Send(fmt.Sprintf("Cycle failed: %v", err))
	}
	return c.Send("Cycle complete: " + result.String())
}

func formatStatus(s job.Status) string {
	var sb strings.Builder
	state := "idle"
	if s.IsRunning {
		state = "running"
	}
	scheduler := "stopped"
	if s.SchedulerActive {
		scheduler = "active"
	}
	fmt.Fprintf(&sb, "Scheduler: %s (every %dm)\nCycle: %s\n", scheduler, s.IntervalMinutes, state)
	fmt.Fprintf(&sb, "Runs: %d total, %d ok, %d failed (%.0f%% success)\n",
		s.TotalRuns, s.SuccessfulRuns, s.FailedRuns, s.SuccessRate)
	if !s.LastRunTime.IsZero() {
		fmt.Fprintf(&sb, "Last run: %s\n%s\n", s.LastRunTime.UTC().Format(time.RFC822), s.LastRunResult)
	}
	if !s.NextRunTime.IsZero() {
		fmt.Fprintf(&sb, "Next run: %s", s.NextRunTime.UTC().Format(time.RFC822))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func isSupportedFrequency(f string) bool {
	for _, s := range domain.SupportedFrequencies {
		if s == f {
			return true
		}
	}
	return false
}
