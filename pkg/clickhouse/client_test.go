package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(ClientConfig{
		Host:        "ch.local",
		Port:        9000,
		Database:    "dualsignal",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		UseHTTP:     true,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Scheme != "http" || u.Host != "ch.local:9000" || u.Path != "/dualsignal" {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %s", dsn)
	}
	if u.Query().Get("dial_timeout") != "5s" {
		t.Fatalf("unexpected query %s", u.RawQuery)
	}
	if u.Query().Has("read_timeout") {
		t.Fatalf("zero read timeout should be omitted")
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
