package storage

import "testing"

func TestParseRedisConnectionStringURL(t *testing.T) {
	opts, err := ParseRedisConnectionString("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestParseRedisConnectionStringAzure(t *testing.T) {
	opts, err := ParseRedisConnectionString("cache.redis.cache.windows.net:6380,password=pw=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache.redis.cache.windows.net:6380" {
		t.Fatalf("unexpected addr: %s", opts.Addr)
	}
	if opts.Password != "pw=" {
		t.Fatalf("unexpected password: %q", opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS to be enabled")
	}
}

func TestParseRedisConnectionStringInvalid(t *testing.T) {
	for _, s := range []string{"", "  ", "password=x"} {
		if _, err := ParseRedisConnectionString(s); err == nil {
			t.Fatalf("%q: expected error", s)
		}
	}
}
