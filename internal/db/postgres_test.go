package db

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{name: "zero", in: Config{}, want: Defaults()},
		{
			name: "idle capped by open",
			in:   Config{DSN: "postgres://x", MaxOpenConns: 4, MaxIdleConns: 10},
			want: Config{DSN: "postgres://x", MaxOpenConns: 4, MaxIdleConns: 4, ConnMaxLifetime: 30 * time.Minute, PingTimeout: 5 * time.Second},
		},
		{
			name: "explicit",
			in:   Config{DSN: "postgres://y", MaxOpenConns: 3, MaxIdleConns: 1, ConnMaxLifetime: time.Minute, PingTimeout: time.Second},
			want: Config{DSN: "postgres://y", MaxOpenConns: 3, MaxIdleConns: 1, ConnMaxLifetime: time.Minute, PingTimeout: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults(); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
