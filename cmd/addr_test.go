package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8400", false},
		{"localhost", "localhost:8400", false},
		{"ip and port", "127.0.0.1:8400", false},
		{"hostname", "vantigo.internal:8400", false},
		{"auto-assign port", ":0", false},
		{"missing port", "127.0.0.1", true},
		{"non-numeric port", ":http", true},
		{"port too large", ":70000", true},
		{"whitespace host", "bad host:8400", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	tests := []struct {
		name       string
		args       []string
		configured string
		want       string
		wantErr    bool
	}{
		{"default", []string{"vantigo", "serve"}, "", "127.0.0.1:8400", false},
		{"configured default", []string{"vantigo", "serve"}, "0.0.0.0:9000", "0.0.0.0:9000", false},
		{"positional", []string{"vantigo", "serve", ":8080"}, "", ":8080", false},
		{"flag", []string{"vantigo", "serve", "--addr", ":8080"}, "", ":8080", false},
		{"single dash flag", []string{"vantigo", "serve", "-addr", ":8080"}, "", ":8080", false},
		{"positional beats config", []string{"vantigo", "serve", ":8080"}, ":9000", ":8080", false},
		{"invalid positional", []string{"vantigo", "serve", "nonsense"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			got, err := parseServeAddr(tt.configured)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("addr = %q, want %q", got, tt.want)
			}
		})
	}
}
