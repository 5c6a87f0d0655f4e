package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/omnilypro/omnily/internal/config"
)

// ActivityMonitor watches wallet activity for patterns that deserve a human
// look: bursts of rejected debits (card testing, drained balances) and
// unusually large debit volume inside a sliding window. It only logs; it
// never blocks an operation.
type ActivityMonitor struct {
	mu          sync.Mutex
	rejections  map[string]*slidingWindow
	successes   map[string]*slidingWindow
	debitVolume map[string]*slidingWindow
	cfg         *config.AnomalyConfig
	logger      *slog.Logger
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	timestamp time.Time
	value     float64
}

// NewActivityMonitor creates an activity monitor from config.
func NewActivityMonitor(cfg *config.AnomalyConfig, logger *slog.Logger) *ActivityMonitor {
	return &ActivityMonitor{
		rejections:  make(map[string]*slidingWindow),
		successes:   make(map[string]*slidingWindow),
		debitVolume: make(map[string]*slidingWindow),
		cfg:         cfg,
		logger:      logger,
	}
}

func (a *ActivityMonitor) windowDuration() time.Duration {
	secs := a.cfg.WindowSeconds
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// RecordRejection records a debit that was refused before any write.
func (a *ActivityMonitor) RecordRejection(customerID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.getOrCreateWindow(a.rejections, customerID)
	w.add(1)
	a.checkFailureRate(customerID)
}

// RecordDebit records a committed debit and its amount.
func (a *ActivityMonitor) RecordDebit(customerID string, amount float64) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getOrCreateWindow(a.successes, customerID).add(1)

	w := a.getOrCreateWindow(a.debitVolume, customerID)
	w.add(amount)
	a.checkDebitVolume(customerID)
}

// checkFailureRate warns when a customer accumulates rejected debits faster
// than the configured threshold. Must be called with a.mu held.
func (a *ActivityMonitor) checkFailureRate(customerID string) {
	threshold := a.cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 10
	}
	minRate := a.cfg.MinFailureRate
	if minRate <= 0 {
		minRate = 0.5
	}

	failures := a.getOrCreateWindow(a.rejections, customerID).sum()
	successes := a.getOrCreateWindow(a.successes, customerID).sum()
	total := failures + successes

	if failures < float64(threshold) {
		return
	}

	rate := failures / total
	if rate >= minRate && a.logger != nil {
		a.logger.Warn("unusual wallet activity: repeated rejected debits",
			slog.String("customer_id", customerID),
			slog.Float64("rejections", failures),
			slog.Float64("failure_rate", rate),
			slog.Duration("window", a.windowDuration()),
		)
	}
}

// checkDebitVolume warns when a customer's debit volume inside the window
// exceeds the configured ceiling. Must be called with a.mu held.
func (a *ActivityMonitor) checkDebitVolume(customerID string) {
	ceiling := a.cfg.DebitSpikeAmount
	if ceiling <= 0 {
		return
	}

	volume := a.getOrCreateWindow(a.debitVolume, customerID).sum()
	if volume > ceiling && a.logger != nil {
		a.logger.Warn("unusual wallet activity: debit volume spike",
			slog.String("customer_id", customerID),
			slog.Float64("volume", volume),
			slog.Float64("ceiling", ceiling),
			slog.Duration("window", a.windowDuration()),
		)
	}
}

func (a *ActivityMonitor) getOrCreateWindow(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

// add appends a value and prunes expired entries.
func (w *slidingWindow) add(value float64) {
	now := time.Now()
	w.entries = append(w.entries, windowEntry{timestamp: now, value: value})
	w.prune(now)
}

// sum returns the total value within the window.
func (w *slidingWindow) sum() float64 {
	w.prune(time.Now())
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	return total
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
