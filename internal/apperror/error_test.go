package apperror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_MessageFallback(t *testing.T) {
	tests := []struct {
		name string
		code Code
		opts []Option
		want string
	}{
		{"known_code", CodePoolQueryFailed, nil, "Pool query failed"},
		{"unknown_code", Code("SOMETHING_ELSE"), nil, "SOMETHING_ELSE"},
		{"custom_message", CodeInvalidInput, []Option{WithMessage("tolerance must be positive")}, "tolerance must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.code, tt.opts...).Message; got != tt.want {
				t.Errorf("Message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	root := errors.New("connection refused")
	err := New(CodeMarketDataUnavailable, WithCause(root), WithContext("pool 0xabc"))

	if !errors.Is(err, root) {
		t.Error("errors.Is should reach the cause")
	}
	if !errors.Is(err, New(CodeMarketDataUnavailable)) {
		t.Error("same code should match")
	}
	if errors.Is(err, New(CodePoolQueryFailed)) {
		t.Error("different code matched")
	}

	want := "MARKET_DATA_UNAVAILABLE: Market data unavailable [pool 0xabc]: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     Code
		wantKind     Kind
		wantExternal bool
	}{
		{"plain", errors.New("x"), CodeUnknownError, KindInternal, false},
		{"wrapped_breaker", fmt.Errorf("outer: %w", New(CodeCircuitOpen)), CodeCircuitOpen, KindExternal, true},
		{"config", New(CodeConfigurationError), CodeConfigurationError, KindInput, false},
		{"pool_query", New(CodePoolQueryFailed), CodePoolQueryFailed, KindExternal, true},
		{"overflow", New(CodeArithmeticOverflow), CodeArithmeticOverflow, KindNumeric, false},
		{"unregistered", New(Code("NEW_CODE")), Code("NEW_CODE"), KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.wantCode {
				t.Errorf("GetCode = %s, want %s", got, tt.wantCode)
			}
			if got := KindOf(tt.err); got != tt.wantKind {
				t.Errorf("KindOf = %s, want %s", got, tt.wantKind)
			}
			if got := IsExternal(tt.err); got != tt.wantExternal {
				t.Errorf("IsExternal = %v, want %v", got, tt.wantExternal)
			}
		})
	}
}

func TestCatalog_Complete(t *testing.T) {
	for code, e := range catalog {
		if e.message == "" {
			t.Errorf("%s has no message", code)
		}
	}
}

func TestWrap_KeepsExistingAppError(t *testing.T) {
	orig := New(CodeInvalidPool)
	got := Wrap(fmt.Errorf("feed: %w", orig), CodeInternalError, "loading markets")
	if got != orig {
		t.Fatal("expected the same AppError back")
	}
	if got.Context != "loading markets" {
		t.Errorf("Context = %q", got.Context)
	}
	if Wrap(nil, CodeInternalError, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	plain := Wrap(errors.New("eof"), CodePoolQueryFailed, "0xabc")
	if plain.Code != CodePoolQueryFailed || !strings.HasSuffix(plain.Error(), ": eof") {
		t.Errorf("Wrap(plain) = %v", plain)
	}
}

func TestAppError_LogValue(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		wantStack bool
	}{
		{"external", New(CodeEthereumRPCError, WithCause(errors.New("timeout"))), false},
		{"internal", New(CodeInvalidState, WithContext("already subscribed")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.err.LogValue()
			if v.Kind() != slog.KindGroup {
				t.Fatalf("kind = %s", v.Kind())
			}

			got := map[string]string{}
			for _, a := range v.Group() {
				got[a.Key] = a.Value.String()
			}
			if got["code"] != string(tt.err.Code) || got["kind"] != tt.err.Code.Kind().String() {
				t.Errorf("attrs = %v", got)
			}
			if _, ok := got["stack"]; ok != tt.wantStack {
				t.Errorf("stack present = %v, want %v", ok, tt.wantStack)
			}
			if tt.wantStack && !strings.Contains(got["stack"], "TestAppError_LogValue") {
				t.Errorf("stack does not start at the caller:\n%s", got["stack"])
			}
		})
	}
}
