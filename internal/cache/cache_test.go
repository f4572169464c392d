package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rewired-gh/scorepulse/internal/models"
)

type fakeClient struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestRedis_SetGet(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, 10*time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "v1|A|B|free"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	btts := 61.5
	want := &models.Prediction{
		Home: "A", Away: "B", Tier: models.TierPremium, ModelUsed: "GB",
		WinProb:    &models.WinProb{Home: 50, Draw: 30, Away: 20},
		TotalGoals: 2.7,
		Score:      &models.Scoreline{Home: 2, Away: 1},
		BTTS:       &btts,
	}
	if err := c.Set(ctx, "v1|A|B|premium", want); err != nil {
		t.Fatal(err)
	}
	if fc.ttls[keyPrefix+"v1|A|B|premium"] != 10*time.Minute {
		t.Error("entry stored without the configured TTL")
	}

	got, ok, err := c.Get(ctx, "v1|A|B|premium")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.ModelUsed != "GB" || *got.WinProb != *want.WinProb || *got.Score != *want.Score || *got.BTTS != btts {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRedis_Errors(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, time.Minute)
	ctx := context.Background()

	fc.data[keyPrefix+"bad"] = "{not json"
	if _, _, err := c.Get(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}

	fc.getErr = errors.New("connection refused")
	if _, ok, err := c.Get(ctx, "k"); err == nil || ok {
		t.Error("expected read error")
	}
	fc.setErr = errors.New("connection refused")
	if err := c.Set(ctx, "k", &models.Prediction{}); err == nil {
		t.Error("expected write error")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on wrapped client should be a no-op, got %v", err)
	}
}
