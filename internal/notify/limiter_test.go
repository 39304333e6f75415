package notify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/infrastructure/config"
)

func testBuckets() config.AlertBucketsConfig {
	return config.AlertBucketsConfig{
		Critical: config.BucketConfig{Burst: 3, Refill: 10, Interval: 300},
		High:     config.BucketConfig{Burst: 5, Refill: 15, Interval: 900},
		Medium:   config.BucketConfig{Burst: 8, Refill: 20, Interval: 1800},
		Low:      config.BucketConfig{Burst: 10, Refill: 30, Interval: 3600},
	}
}

// clock is a controllable time source for limiter tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*RateLimiter, *clock) {
	limiter := NewRateLimiter(testBuckets())
	clk := newClock()
	limiter.now = clk.Now
	return limiter, clk
}

func criticalAlert(group string) adapters.Alert {
	return adapters.Alert{
		DeviceID: "ap-1",
		Type:     "appliance_error",
		Metric:   "error",
		Priority: adapters.PriorityCritical,
		GroupID:  group,
	}
}

func TestShouldAllow_BurstThenReject(t *testing.T) {
	limiter, _ := newTestLimiter()
	alert := criticalAlert("appliance/ap-1")

	// Critical bucket starts full with 3 tokens
	for i := 0; i < 3; i++ {
		if !limiter.ShouldAllow(alert) {
			t.Fatalf("alert %d rejected within burst", i+1)
		}
	}
	if limiter.ShouldAllow(alert) {
		t.Error("4th alert allowed, want rejected")
	}
}

func TestShouldAllow_RefillRestoresQuota(t *testing.T) {
	limiter, clk := newTestLimiter()
	alert := criticalAlert("appliance/ap-1")

	for i := 0; i < 3; i++ {
		limiter.ShouldAllow(alert)
	}
	if limiter.ShouldAllow(alert) {
		t.Fatal("alert allowed with empty bucket")
	}

	// Critical refills 10 tokens per 300s, one token every 30s
	clk.Advance(30 * time.Second)
	if !limiter.ShouldAllow(alert) {
		t.Error("alert rejected after refill interval")
	}
	if limiter.ShouldAllow(alert) {
		t.Error("second alert allowed after single-token refill")
	}
}

func TestShouldAllow_IndependentGroups(t *testing.T) {
	limiter, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		limiter.ShouldAllow(criticalAlert("appliance/ap-1"))
	}
	if limiter.ShouldAllow(criticalAlert("appliance/ap-1")) {
		t.Fatal("exhausted group still allowed")
	}
	if !limiter.ShouldAllow(criticalAlert("appliance/ap-2")) {
		t.Error("separate group throttled by sibling's bucket")
	}
}

func TestAlertKey_FallsBackToTypeAndMetric(t *testing.T) {
	grouped := criticalAlert("appliance/ap-1")
	if got := alertKey(grouped); got != "appliance/ap-1" {
		t.Errorf("alertKey() = %q, want group", got)
	}

	ungrouped := criticalAlert("")
	if got := alertKey(ungrouped); got != "appliance_error/error" {
		t.Errorf("alertKey() = %q, want type/metric", got)
	}
}

func TestShouldAllow_PriorityBucketsAreSeparate(t *testing.T) {
	limiter, _ := newTestLimiter()

	low := adapters.Alert{Type: "bin_full", Metric: "fill", Priority: adapters.PriorityLow, GroupID: "bin/b-1"}
	for i := 0; i < 10; i++ {
		if !limiter.ShouldAllow(low) {
			t.Fatalf("low alert %d rejected within burst of 10", i+1)
		}
	}
	if limiter.ShouldAllow(low) {
		t.Error("11th low alert allowed")
	}
}

func TestQuotaRemaining_DoesNotConsume(t *testing.T) {
	limiter, _ := newTestLimiter()
	alert := criticalAlert("appliance/ap-1")

	if got := limiter.QuotaRemaining(alert); got != 3 {
		t.Fatalf("QuotaRemaining() = %v, want 3", got)
	}
	if got := limiter.QuotaRemaining(alert); got != 3 {
		t.Errorf("QuotaRemaining() consumed tokens: %v", got)
	}

	limiter.ShouldAllow(alert)
	if got := limiter.QuotaRemaining(alert); got != 2 {
		t.Errorf("QuotaRemaining() after one alert = %v, want 2", got)
	}
}

// fakePublisher records published messages.
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *fakePublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	return nil
}

func TestNotifier_DeliversWithinQuota(t *testing.T) {
	limiter, _ := newTestLimiter()
	pub := &fakePublisher{}
	notifier := NewNotifier(limiter, pub, 1)

	delivered, err := notifier.Deliver(criticalAlert("appliance/ap-1"))
	if err != nil || !delivered {
		t.Fatalf("Deliver() = %v, %v, want true, nil", delivered, err)
	}
	if len(pub.topics) != 1 || !strings.HasSuffix(pub.topics[0], "/alert/critical") {
		t.Errorf("published topics = %v", pub.topics)
	}
}

func TestNotifier_DropsOverQuota(t *testing.T) {
	limiter, _ := newTestLimiter()
	pub := &fakePublisher{}
	notifier := NewNotifier(limiter, pub, 1)

	for i := 0; i < 3; i++ {
		notifier.Deliver(criticalAlert("appliance/ap-1"))
	}
	delivered, err := notifier.Deliver(criticalAlert("appliance/ap-1"))
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if delivered {
		t.Error("Deliver() = true over quota, want drop")
	}
	if len(pub.topics) != 3 {
		t.Errorf("published = %d, want 3", len(pub.topics))
	}
}

func TestNotifier_PublishFailureSurfaces(t *testing.T) {
	limiter, _ := newTestLimiter()
	wantErr := errors.New("broker gone")
	notifier := NewNotifier(limiter, &fakePublisher{err: wantErr}, 1)

	delivered, err := notifier.Deliver(criticalAlert("appliance/ap-1"))
	if delivered || !errors.Is(err, wantErr) {
		t.Errorf("Deliver() = %v, %v, want false with wrapped publish error", delivered, err)
	}
}
