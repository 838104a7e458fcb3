package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 50*time.Millisecond, 400*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		ceil := min * time.Duration(1<<uint(min64(attempt-1, 3)))
		if ceil > max {
			ceil = max
		}
		if d > ceil || d <= ceil/2-time.Nanosecond {
			t.Fatalf("attempt %d: backoff %s outside (%s, %s]", attempt, d, ceil/2, ceil)
		}
	}
}

func min64(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestHookChainOrderAndPanic(t *testing.T) {
	var order []string
	mark := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
		}
	}
	chain := NewHookChain(mark("a"), nil, mark("b"))
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	if string(data) != "xab" {
		t.Fatalf("data = %q", data)
	}
	want := []string{"before:a", "before:b", "after:b", "after:a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v", order)
		}
	}

	panicky := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("boom")
	}}
	_, _, _, err = NewHookChain(panicky).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC, got %v", err)
	}
}

func TestRejectEmpty(t *testing.T) {
	h := RejectEmpty()
	if _, _, _, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, nil); err == nil {
		t.Fatalf("empty payload accepted")
	}
	if _, _, _, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("{}")); err != nil {
		t.Fatalf("payload rejected: %v", err)
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"raw_value": 7})
	if err != nil || string(b) != `{"raw_value":7}` {
		t.Fatalf("json = %s, %v", b, err)
	}
	if b, _ := encodeValue("plain"); string(b) != "plain" {
		t.Fatalf("string = %s", b)
	}
	if _, err := encodeValue(func() {}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected error without handlers")
	}
}

func TestProducerConfigKeepsDefaultsOnZero(t *testing.T) {
	cfg := defaultProducerConfig()
	for _, opt := range []ProducerOption{
		WithBrokers([]string{"localhost:9092"}),
		WithCompression(""),
		WithMaxAttempts(0),
		WithBatchTimeout(0),
		WithTimeouts(0, time.Second),
	} {
		opt(cfg)
	}
	if cfg.Compression != "snappy" || cfg.MaxAttempts != 3 || cfg.BatchTimeout != 10*time.Millisecond {
		t.Fatalf("defaults overwritten: %+v", cfg)
	}
	if cfg.WriteTimeout != 10*time.Second || cfg.ReadTimeout != time.Second {
		t.Fatalf("timeouts = %s/%s", cfg.WriteTimeout, cfg.ReadTimeout)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewProducerValidates(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(2)); err == nil {
		t.Fatalf("expected error for acks=2")
	}
}
