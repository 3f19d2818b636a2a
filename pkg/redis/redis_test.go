package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func getTestConfig() *Config {
	cfg := DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	if password := os.Getenv("TEST_REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Host)
	}
	if cfg.Port != 6379 {
		t.Errorf("Expected port 6379, got %d", cfg.Port)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.example.com", Port: 6380}

	if got := cfg.Addr(); got != "redis.example.com:6380" {
		t.Errorf("Expected addr 'redis.example.com:6380', got '%s'", got)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &Config{
		Host:          "127.0.0.1",
		Port:          1,
		MaxRetries:    0,
		RetryInterval: 10 * time.Millisecond,
		DialTimeout:   200 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewClient(ctx, cfg); err == nil {
		t.Error("Expected error for unreachable redis, got nil")
	}
}

func TestHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectPing().SetVal("PONG")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("Expected HealthCheck to fail")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEvalWithFallback_LoadsThenReusesScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)
	ctx := context.Background()

	script := "return redis.call('INCR', KEYS[1])"
	sha := computeSHA1(script)

	mock.ExpectScriptLoad(script).SetVal(sha)
	mock.ExpectEvalSha(sha, []string{"k"}).SetVal(int64(1))
	mock.ExpectEvalSha(sha, []string{"k"}).SetVal(int64(2))

	n, err := client.EvalWithFallback(ctx, "incr", script, []string{"k"}).Int64()
	if err != nil || n != 1 {
		t.Fatalf("first eval = %d, %v", n, err)
	}
	n, err = client.EvalWithFallback(ctx, "incr", script, []string{"k"}).Int64()
	if err != nil || n != 2 {
		t.Fatalf("second eval = %d, %v", n, err)
	}

	if got, ok := client.ScriptSHA("incr"); !ok || got != sha {
		t.Errorf("ScriptSHA() = %q, %v", got, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEvalWithFallback_ReloadsOnNoScript(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)
	ctx := context.Background()

	script := "return 1"
	sha := computeSHA1(script)
	client.scripts.Store("one", sha)

	mock.ExpectEvalSha(sha, []string{}).SetErr(errors.New("NOSCRIPT No matching script. Please use EVAL."))
	mock.ExpectScriptLoad(script).SetVal(sha)
	mock.ExpectEvalSha(sha, []string{}).SetVal(int64(1))

	n, err := client.EvalWithFallback(ctx, "one", script, []string{}).Int64()
	if err != nil || n != 1 {
		t.Fatalf("eval = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestComputeSHA1(t *testing.T) {
	sha := computeSHA1("return 1")

	if len(sha) != 40 {
		t.Errorf("Expected SHA1 length 40, got %d", len(sha))
	}
	if sha != computeSHA1("return 1") {
		t.Error("Same script should produce same SHA")
	}
	if sha == computeSHA1("return 2") {
		t.Error("Different scripts should produce different SHAs")
	}
}

func TestIsNoScriptError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{fmt.Errorf("some error"), false},
		{fmt.Errorf("NOSCRIPT No matching script. Please use EVAL."), true},
	}

	for _, tt := range tests {
		if got := isNoScriptError(tt.err); got != tt.expected {
			t.Errorf("isNoScriptError(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestNewClient_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, getTestConfig())
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}

	key := "qode:test:" + time.Now().Format("20060102150405.000")
	if err := client.Set(ctx, key, "v", time.Minute).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if val, err := client.Get(ctx, key).Result(); err != nil || val != "v" {
		t.Errorf("Get = %q, %v", val, err)
	}
	client.Del(ctx, key)
}
