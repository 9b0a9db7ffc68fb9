package obscerr

import (
	"errors"
	"testing"
)

func TestSentinelsCompareWithErrorsIs(t *testing.T) {
	if !errors.Is(ErrAuthenticationFailed, ErrAuthenticationFailed) {
		t.Fatal("sentinel should equal itself under errors.Is")
	}
	if errors.Is(ErrAuthenticationFailed, ErrKeySizeInvalid) {
		t.Fatal("distinct sentinels should not compare equal")
	}
}

func TestWrapPreservesErrorsIs(t *testing.T) {
	wrapped := Wrap(ErrKdfParameterInvalid, "scrypt N too small")
	if !errors.Is(wrapped, ErrKdfParameterInvalid) {
		t.Fatal("wrapped error should still satisfy errors.Is against its sentinel")
	}
	if errors.Is(wrapped, ErrAuthenticationFailed) {
		t.Fatal("wrapped error should not satisfy errors.Is against an unrelated sentinel")
	}
}

func TestKindOfClassifiesSentinelsAndWrapped(t *testing.T) {
	if KindOf(ErrCurveMismatch) != KindCurveMismatch {
		t.Fatalf("KindOf(ErrCurveMismatch) = %v, want KindCurveMismatch", KindOf(ErrCurveMismatch))
	}
	wrapped := Wrap(ErrFormatMalformed, "truncated header")
	if KindOf(wrapped) != KindFormatMalformed {
		t.Fatalf("KindOf(wrapped) = %v, want KindFormatMalformed", KindOf(wrapped))
	}
}

func TestKindOfUnknownForForeignError(t *testing.T) {
	if KindOf(errors.New("some other error")) != KindUnknown {
		t.Fatal("KindOf should return KindUnknown for an error not produced by this package")
	}
}

func TestKindStringNames(t *testing.T) {
	if KindAuthenticationFailed.String() != "AuthenticationFailed" {
		t.Fatalf("unexpected String() for KindAuthenticationFailed: %s", KindAuthenticationFailed.String())
	}
	if KindUnknown.String() != "Unknown" {
		t.Fatalf("unexpected String() for KindUnknown: %s", KindUnknown.String())
	}
}
