// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package protoerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKindRoundtrip(t *testing.T) {
	kinds := []Kind{KindConfig, KindIO, KindProtocol, KindCrypto, KindUnauthorized, KindNotFound, KindInvalid}
	for _, k := range kinds {
		err := Wrap(k, "something failed", errors.New("underlying"))
		if got := KindOf(err); got != k {
			t.Errorf("KindOf(Wrap(%v, ...)) = %v, want %v", k, got, k)
		}
	}
}

func TestWrapWithoutUnderlyingError(t *testing.T) {
	err := Wrap(KindNotFound, "missing session", nil)
	if err == nil {
		t.Fatal("Wrap should return a non-nil error")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf(err) = %v, want KindNotFound", KindOf(err))
	}
}

func TestKindUnknownForUnwrappedError(t *testing.T) {
	if got := KindOf(errors.New("plain error")); got != KindUnknown {
		t.Errorf("Kind(plain error) = %v, want KindUnknown", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Errorf("KindOf(nil) = %v, want KindUnknown", got)
	}
}

func TestWrapPreservesUnderlyingErrorForUnwrapping(t *testing.T) {
	underlying := errors.New("disk full")
	err := Wrap(KindIO, "writing file", underlying)
	if !errors.Is(err, underlying) {
		t.Error("Wrap should preserve the underlying error for errors.Is")
	}
}

func TestExitCodeIsDistinctPerKind(t *testing.T) {
	seen := map[int]Kind{}
	kinds := []Kind{KindUnknown, KindConfig, KindIO, KindProtocol, KindCrypto, KindUnauthorized, KindNotFound, KindInvalid}
	for _, k := range kinds {
		code := ExitCode(k)
		if other, ok := seen[code]; ok {
			t.Errorf("ExitCode(%v) and ExitCode(%v) both return %d", k, other, code)
		}
		seen[code] = k
	}
}

func TestKindFromCodeRoundtripsExitCode(t *testing.T) {
	kinds := []Kind{KindConfig, KindIO, KindProtocol, KindCrypto, KindUnauthorized, KindNotFound, KindInvalid}
	for _, k := range kinds {
		code := ExitCode(k)
		if got := KindFromCode(int32(code)); got != k {
			t.Errorf("KindFromCode(ExitCode(%v)) = %v, want %v", k, got, k)
		}
	}
}

func TestKindFromCodeUnknownForUnmappedCode(t *testing.T) {
	if got := KindFromCode(0); got != KindUnknown {
		t.Errorf("KindFromCode(0) = %v, want KindUnknown", got)
	}
	if got := KindFromCode(99); got != KindUnknown {
		t.Errorf("KindFromCode(99) = %v, want KindUnknown", got)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindConfig:       "config",
		KindIO:           "io",
		KindProtocol:     "protocol",
		KindCrypto:       "crypto",
		KindUnauthorized: "unauthorized",
		KindNotFound:     "not_found",
		KindInvalid:      "invalid",
		KindUnknown:      "unknown",
	}
	for k, want := range cases {
		if got := fmt.Sprint(k); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
