package errs

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[Kind]codes.Code{
	InvalidInput:  codes.InvalidArgument,
	Inconsistency: codes.FailedPrecondition,
	Transport:     codes.Unavailable,
	Protocol:      codes.Aborted,
	Storage:       codes.Internal,
}

// ToStatus converts err into a gRPC status error carrying its kind.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	code, ok := kindCodes[KindOf(err)]
	if !ok {
		code = codes.Unknown
	}
	return status.Error(code, err.Error())
}

// FromStatus classifies an error returned by a gRPC call. Connection
// failures and deadlines are transport errors.
func FromStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return TransportErr(op, err)
	}
	kind := Protocol
	switch st.Code() {
	case codes.InvalidArgument:
		kind = InvalidInput
	case codes.FailedPrecondition:
		kind = Inconsistency
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		kind = Transport
	case codes.Internal:
		kind = Storage
	}
	return &Error{Kind: kind, Op: op, Msg: st.Message()}
}
