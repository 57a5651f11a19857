package server

import (
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"

	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
)

var grpcToHTTP = map[codes.Code]int{
	codes.OK:                 http.StatusOK,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.NotFound:           http.StatusNotFound,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.Canceled:           statusClientClosedRequest,
	codes.DataLoss:           http.StatusUnprocessableEntity,
	codes.FailedPrecondition: http.StatusPreconditionFailed,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unknown:            http.StatusInternalServerError,
}

// httpStatus resolves the response status for err.
func httpStatus(err error) int {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	if s, ok := grpcToHTTP[appErr.GRPCCode()]; ok {
		return s
	}
	return http.StatusInternalServerError
}
