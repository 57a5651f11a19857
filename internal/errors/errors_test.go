package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
)

func TestAppErrorMessage(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Wrap(cause, CodeIOFailed, "save baseline").WithMetadata("key", "login")

	msg := err.Error()
	for _, want := range []string{"[IO_FAILED]", "save baseline", "key:login", "permission denied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGRPCCode(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeCaptureFailed, codes.Unavailable},
		{CodeIOFailed, codes.Internal},
		{CodeInvalidArgument, codes.InvalidArgument},
		{CodeNotFound, codes.NotFound},
		{CodeTimeout, codes.DeadlineExceeded},
		{Code(99), codes.Unknown},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").GRPCCode(); got != tt.want {
			t.Errorf("%v.GRPCCode() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestGRPCStatusRoundTrip(t *testing.T) {
	orig := New(CodeCaptureFailed, "element not found").WithMetadata("target", "#login")

	back := FromGRPCError(orig.GRPCStatus().Err())
	if back.Code != CodeCaptureFailed {
		t.Errorf("Code = %v, want CAPTURE_FAILED", back.Code)
	}
	if back.Message != "element not found" {
		t.Errorf("Message = %q", back.Message)
	}
	if back.Metadata["target"] != "#login" {
		t.Errorf("Metadata = %v", back.Metadata)
	}
}

func TestFromGRPCErrorFallback(t *testing.T) {
	err := FromGRPCError(status.Error(codes.NotFound, "missing"))
	if err.Code != CodeNotFound {
		t.Errorf("Code = %v, want NOT_FOUND", err.Code)
	}

	plain := FromGRPCError(stderrors.New("plain"))
	if plain.Code != CodeUnknown {
		t.Errorf("Code = %v, want UNKNOWN", plain.Code)
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("compare login: %w", New(CodeIOFailed, "disk full"))

	if !IsCode(err, CodeIOFailed) {
		t.Error("IsCode should unwrap fmt.Errorf chains")
	}
	if CodeOf(err) != CodeIOFailed {
		t.Errorf("CodeOf() = %v", CodeOf(err))
	}
	if CodeOf(stderrors.New("x")) != CodeUnknown {
		t.Error("CodeOf(plain) should be UNKNOWN")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(CodeCaptureFailed, ""), true},
		{New(CodeTimeout, ""), true},
		{New(CodeIOFailed, ""), false},
		{New(CodeDecodeFailed, ""), false},
		{stderrors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCodeString(t *testing.T) {
	if CodeDecodeFailed.String() != "DECODE_FAILED" {
		t.Errorf("String() = %q", CodeDecodeFailed.String())
	}
	if Code(42).String() != "CODE_42" {
		t.Errorf("String() = %q", Code(42).String())
	}
}

func TestFromGRPCErrorAnyDetail(t *testing.T) {
	packed, err := anypb.New(New(CodeDecodeFailed, "not a png").Detail())
	if err != nil {
		t.Fatal(err)
	}
	st, err := status.New(codes.DataLoss, "decode").WithDetails(packed)
	if err != nil {
		t.Fatal(err)
	}

	back := FromGRPCError(st.Err())
	if back.Code != CodeDecodeFailed || back.Message != "not a png" {
		t.Errorf("FromGRPCError() = %v", back)
	}
}
