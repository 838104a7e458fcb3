package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	defaultFlushInterval  = 30 * time.Second
	defaultCountThreshold = 100
	publishTimeout        = 30 * time.Second
)

// Publisher ships a batch of aggregated logs. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force an early flush
	Topic          string
	Source         string // message key, usually the service name
	Publisher      Publisher
	// OnError receives publish failures. Defaults to a line on stderr.
	OnError func(error)
}

// AggregatedLogEntry is one distinct (level, message, fields, caller) seen Count times.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the published payload. Entries are ordered by Count, highest first.
type LogBatch struct {
	Source    string               `json:"source"`
	FlushedAt time.Time            `json:"flushed_at"`
	Total     int                  `json:"total"`
	Entries   []AggregatedLogEntry `json:"entries"`
}

// LogCollector folds repeated warn/error logs into counted entries and publishes them
// in batches, so a stalled feed logging every tick costs one entry per flush.
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry

	stop    chan struct{}
	done    chan struct{}
	sending sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = defaultFlushInterval
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = defaultCountThreshold
	}
	if cfg.OnError == nil {
		cfg.OnError = func(err error) {
			fmt.Fprintf(os.Stderr, "log collector: publish: %v\n", err)
		}
	}

	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch *LogBatch
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drainLocked(now)
	}
	c.mu.Unlock()

	c.send(batch)
}

// Pending returns the number of distinct entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// entryKey hashes the identity of a log line. encoding/json sorts map keys, so equal
// field sets hash equally.
func entryKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	for _, s := range []string{level, message, caller} {
		_, _ = h.Write([]byte(strconv.Itoa(len(s))))
		_, _ = h.Write([]byte(s))
	}
	if len(fields) > 0 {
		if b, err := json.Marshal(fields); err == nil {
			_, _ = h.Write(b)
		}
	}
	return h.Sum64()
}

func (c *LogCollector) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.flush(now)
		case <-c.stop:
			c.flush(time.Now())
			return
		}
	}
}

func (c *LogCollector) flush(now time.Time) {
	c.mu.Lock()
	batch := c.drainLocked(now)
	c.mu.Unlock()
	c.send(batch)
}

// drainLocked swaps out the pending entries. Caller holds the mutex.
func (c *LogCollector) drainLocked(now time.Time) *LogBatch {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return nil
	}
	batch := &LogBatch{Source: c.cfg.Source, FlushedAt: now, Entries: make([]AggregatedLogEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		batch.Entries = append(batch.Entries, *e)
		batch.Total += e.Count
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)

	sort.Slice(batch.Entries, func(i, j int) bool {
		if batch.Entries[i].Count != batch.Entries[j].Count {
			return batch.Entries[i].Count > batch.Entries[j].Count
		}
		return batch.Entries[i].FirstSeen.Before(batch.Entries[j].FirstSeen)
	})
	return batch
}

func (c *LogCollector) send(batch *LogBatch) {
	if batch == nil {
		return
	}
	c.sending.Add(1)
	go func() {
		defer c.sending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte(c.cfg.Source), batch); err != nil {
			c.cfg.OnError(err)
		}
	}()
}

// Close performs a final flush and waits for in-flight sends. Safe to call twice.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	c.sending.Wait()
}
