package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "user-1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ofType(typ amqp.EventType) []*amqp.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*amqp.Event
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	now      time.Time
	repo     *storage.MemoryRepository
	pub      *recordingPublisher
	ledger   *LedgerService
	accounts *AccountService
	budgets  *BudgetService
	goals    *GoalService
	sched    *Scheduler
	profiles *ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:  time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		repo: storage.NewMemoryRepository(),
		pub:  &recordingPublisher{},
	}
	clock := func() time.Time { return f.now }
	currencies := cache.NewLRU[string](16, time.Minute)

	f.ledger = NewLedgerService(f.repo, f.pub, clock, currencies, "")
	f.accounts = NewAccountService(f.repo, clock, "")
	f.budgets = NewBudgetService(f.repo, f.pub, clock)
	f.goals = NewGoalService(f.repo, f.ledger, f.pub, clock)
	f.sched = NewScheduler(f.repo, f.ledger, f.pub, clock)
	f.profiles = NewProfileService(f.repo, clock, currencies, "")
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !dec(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("want %s, got %s", want, got), fmt.Sprint(msgAndArgs...))
	}
}

func requireKind(t *testing.T, err error, kind core.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, core.KindOf(err), err.Error())
}

func (f *fixture) account(t *testing.T, balance string) core.Account {
	t.Helper()
	a, err := f.accounts.Create(context.Background(), owner, CreateAccountRequest{
		Name:    "Main",
		Type:    core.AccountBank,
		Balance: dec(balance),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) tx(t *testing.T, typ core.TransactionType, category, amount, accountID string, date time.Time) core.Transaction {
	t.Helper()
	when := core.DateOf(date)
	tx, err := f.ledger.Create(context.Background(), owner, TransactionRequest{
		Type:      typ,
		Category:  category,
		Amount:    dec(amount),
		AccountID: accountID,
		Date:      &when,
	})
	require.NoError(t, err)
	return tx
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.repo.GetAccount(context.Background(), owner, id)
	require.NoError(t, err)
	return a.Balance
}

func TestStoreErr(t *testing.T) {
	assert.Equal(t, core.KindNotFound, core.KindOf(storeErr("x", "budget", storage.ErrNotFound)))
	err := storeErr("fetch budget", "budget", errors.New("disk full"))
	assert.Equal(t, core.KindUpstream, core.KindOf(err))
	assert.Equal(t, "failed to fetch budget: disk full", err.Error())
}

func TestNotifierSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	n := notifier{pub: pub}
	n.notify(context.Background(), amqp.NewEvent(amqp.EventGoalCompleted, owner, "g1"))
	assert.Len(t, pub.events, 1)

	notifier{}.notify(context.Background(), amqp.NewEvent(amqp.EventGoalCompleted, owner, "g1"))
}
