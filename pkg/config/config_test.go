package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
feed:
  url: http://feed.local/list
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 || c.Feed.Interval != 2*time.Second || c.Feed.StallAfter != time.Minute {
		t.Fatalf("server/feed defaults not applied: %+v %+v", c.Server, c.Feed)
	}
	if c.Backend.Type != BackendNone || c.Ledger.Store != LedgerFile || c.Sessions.MaxLevel != 5 {
		t.Fatalf("defaults = backend %q ledger %q max level %d", c.Backend.Type, c.Ledger.Store, c.Sessions.MaxLevel)
	}
	eng := c.EngineOptions()
	if eng.MinHistory != 10 || !eng.NoSkip || eng.PRNG.Enabled {
		t.Fatalf("engine defaults = %+v", eng)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte(minimal + `
server:
  cors: false
engine:
  no_skip: false
  prng:
    enabled: true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.CORS || c.Engine.NoSkip || !c.Engine.PRNG.Enabled {
		t.Fatalf("explicit values overridden: cors=%v no_skip=%v prng=%v", c.Server.CORS, c.Engine.NoSkip, c.Engine.PRNG.Enabled)
	}
	if c.Engine.PRNG.Weight != 60 {
		t.Fatalf("prng weight default lost: %v", c.Engine.PRNG.Weight)
	}
}

func TestApplyEnv(t *testing.T) {
	c, _ := Parse([]byte(minimal))
	env := map[string]string{
		"ROUNDPULL_FEED_URL": "https://other/list",
		"BACKEND":            "kafka",
		"KAFKA_BROKERS":      "a:9092, b:9092,",
		"LEDGER_PATH":        "/tmp/l.json",
	}
	c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if c.Feed.URL != "https://other/list" || c.Backend.Type != BackendKafka || c.Ledger.Path != "/tmp/l.json" {
		t.Fatalf("env not applied: %+v", c)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing feed", ``, "feed.url"},
		{"bad backend", minimal + "backend:\n  type: s3\n", "backend.type"},
		{"kafka without brokers", minimal + "backend:\n  type: kafka\n", "kafka.brokers"},
		{"redis ledger without addr", minimal + "ledger:\n  store: redis\n", "redis.addr"},
		{"stall below interval", minimal + "  stall_after: 1s\n", "stall_after"},
		{"engine bounds", minimal + "engine:\n  periodicity:\n    window: 5\n", "periodicity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			err = c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("config/config.yaml not present")
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate shipped config: %v", err)
	}
	if !c.Engine.PRNG.Enabled {
		t.Fatalf("shipped config should enable the formula component")
	}
}
