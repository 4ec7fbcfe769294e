package governance

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/events"
)

const (
	DefaultVotingDuration = 3 * 24 * 60 * 60
	DefaultRevealDuration = 24 * 60 * 60
	DefaultMinVotes       = 3
)

type Config struct {
	VotingDuration int64
	RevealDuration int64
	MinVotes       uint64
}

func DefaultConfig() Config {
	return Config{
		VotingDuration: DefaultVotingDuration,
		RevealDuration: DefaultRevealDuration,
		MinVotes:       DefaultMinVotes,
	}
}

// Ledger owns proposals and their ballots. Mutations are serialized by mu;
// the execution hook runs after mu is released.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	cfg     Config
	hook    ExecutionHook
	nowFn   func() int64
	emitter events.Emitter
	log     *zap.Logger
}

func NewLedger(store Store, cfg Config, log *zap.Logger) (*Ledger, error) {
	if cfg.VotingDuration <= 0 || cfg.RevealDuration <= 0 {
		return nil, fmt.Errorf("governance: voting and reveal durations must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		cfg:     cfg,
		nowFn:   func() int64 { return time.Now().Unix() },
		emitter: events.NoopEmitter{},
		log:     log,
	}, nil
}

func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.nowFn = now
	}
}

func (l *Ledger) SetEmitter(e events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e == nil {
		e = events.NoopEmitter{}
	}
	l.emitter = e
}

// SetExecutionHook installs the hook run after each execution. nil disables it.
func (l *Ledger) SetExecutionHook(h ExecutionHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = h
}

func (l *Ledger) Config() Config { return l.cfg }

// Now reads the ledger clock.
func (l *Ledger) Now() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nowFn()
}
