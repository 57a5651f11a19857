// Package errors provides unified error handling with a typed ErrorCode.
// Codes map onto gRPC status codes so callers embedding the engine in an RPC
// or HTTP surface get consistent status semantics.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies infrastructure failures. Comparison mismatches are not errors.
type Code int32

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeCaptureFailed // collaborator could not produce an image
	CodeDecodeFailed  // collaborator produced bytes that are not an image
	CodeIOFailed      // baseline directory unreadable/unwritable
	CodeConfigInvalid
)

var codeNames = map[Code]string{
	CodeUnknown:         "UNKNOWN",
	CodeInternal:        "INTERNAL",
	CodeInvalidArgument: "INVALID_ARGUMENT",
	CodeNotFound:        "NOT_FOUND",
	CodeUnavailable:     "UNAVAILABLE",
	CodeTimeout:         "TIMEOUT",
	CodeCancelled:       "CANCELLED",
	CodeCaptureFailed:   "CAPTURE_FAILED",
	CodeDecodeFailed:    "DECODE_FAILED",
	CodeIOFailed:        "IO_FAILED",
	CodeConfigInvalid:   "CONFIG_INVALID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE_%d", int32(c))
}

// grpcCodeMap maps ErrorCode to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:         codes.Unknown,
	CodeInternal:        codes.Internal,
	CodeInvalidArgument: codes.InvalidArgument,
	CodeNotFound:        codes.NotFound,
	CodeUnavailable:     codes.Unavailable,
	CodeTimeout:         codes.DeadlineExceeded,
	CodeCancelled:       codes.Canceled,
	CodeCaptureFailed:   codes.Unavailable,
	CodeDecodeFailed:    codes.DataLoss,
	CodeIOFailed:        codes.Internal,
	CodeConfigInvalid:   codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// Detail packs code, message and metadata as a protobuf Struct.
func (e *AppError) Detail() *structpb.Struct {
	md := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	detail, err := structpb.NewStruct(map[string]any{
		"code":     e.Code.String(),
		"message":  e.Message,
		"metadata": md,
	})
	if err != nil {
		return &structpb.Struct{}
	}
	return detail
}

// GRPCStatus returns a gRPC status with the detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.Detail()); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			// Details packed twice arrive as Any
			packed, isAny := detail.(*anypb.Any)
			if !isAny {
				continue
			}
			s = &structpb.Struct{}
			if err := packed.UnmarshalTo(s); err != nil {
				continue
			}
		}
		fields := s.AsMap()
		name, _ := fields["code"].(string)
		msg, _ := fields["message"].(string)
		appErr := &AppError{Code: codeFromName(name), Message: msg}
		if md, ok := fields["metadata"].(map[string]any); ok {
			for k, v := range md {
				if sv, ok := v.(string); ok {
					appErr.WithMetadata(k, sv)
				}
			}
		}
		return appErr
	}

	// Fallback: map gRPC code to our error code
	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message()}
}

func codeFromName(name string) Code {
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return CodeUnknown
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.DataLoss:
		return CodeDecodeFailed
	case codes.FailedPrecondition:
		return CodeConfigInvalid
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the error is potentially retryable.
// IO and decode failures are never retried.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeCaptureFailed:
		return true
	default:
		return false
	}
}
