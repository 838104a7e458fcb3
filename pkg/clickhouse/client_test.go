package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch.local",
		Port:        9000,
		Database:    "roundpull",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
		AsyncInsert: true,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9000" || u.Path != "/roundpull" {
		t.Fatalf("dsn = %s", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %s", dsn)
	}
	q := u.Query()
	if q.Get("dial_timeout") != "5s" || q.Get("max_execution_time") != "30" || q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "0" {
		t.Fatalf("settings = %v", q)
	}
	if q.Has("read_timeout") {
		t.Fatalf("unset read_timeout rendered: %v", q)
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "d", UseHTTP: true})
	u, _ := url.Parse(dsn)
	if u.Scheme != "http" {
		t.Fatalf("scheme = %s", u.Scheme)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}

func TestResolvePortByProtocol(t *testing.T) {
	native := defaultClientConfig()
	WithHost("ch")(native)
	if err := native.resolve(); err != nil || native.Port != 9000 {
		t.Fatalf("native port = %d err %v", native.Port, err)
	}

	h := defaultClientConfig()
	for _, opt := range []ClientOption{WithHost("ch"), WithHTTP(true), WithPort(0), WithMaxConnections(2, 8)} {
		opt(h)
	}
	if err := h.resolve(); err != nil || h.Port != 8123 {
		t.Fatalf("http port = %d err %v", h.Port, err)
	}
	if h.MaxIdleConns != 2 {
		t.Fatalf("idle conns not capped: %d", h.MaxIdleConns)
	}
}
