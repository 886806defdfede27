package api_v1

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
)

func withMessage(code codes.Code, msg string) *status.Status {
	st := status.New(code, msg)
	d := &errdetails.LocalizedMessage{
		Locale:  "en-US",
		Message: msg,
	}
	std, err := st.WithDetails(d)
	if err != nil {
		return st
	}
	return std
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) GRPCStatus() *status.Status {
	st := withMessage(codes.InvalidArgument, e.message())
	d := &errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{
			{Field: e.Field, Description: e.Reason},
		},
	}
	std, err := st.WithDetails(d)
	if err != nil {
		return st
	}
	return std
}

func (e ValidationError) message() string {
	if len(e.Field) == 0 {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Error() string {
	return e.message()
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) GRPCStatus() *status.Status {
	return withMessage(codes.NotFound, e.Error())
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

type InvalidTransitionError struct {
	JobId string
	From  string
	To    string
}

func (e InvalidTransitionError) GRPCStatus() *status.Status {
	return withMessage(codes.FailedPrecondition, e.Error())
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s can not move from %s to %s", e.JobId, e.From, e.To)
}

type InvalidStateError struct {
	DraftId string
	State   string
	Reason  string
}

func (e InvalidStateError) GRPCStatus() *status.Status {
	return withMessage(codes.FailedPrecondition, e.Error())
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("workflow draft %s is %s: %s", e.DraftId, e.State, e.Reason)
}

type UnknownModuleError struct {
	ModuleId string
}

func (e UnknownModuleError) GRPCStatus() *status.Status {
	return withMessage(codes.NotFound, e.Error())
}

func (e UnknownModuleError) Error() string {
	return fmt.Sprintf("module %s is not registered or inactive", e.ModuleId)
}

type PollError struct {
	QueueName string
}

func (e PollError) GRPCStatus() *status.Status {
	return withMessage(codes.NotFound, e.Error())
}

func (e PollError) Error() string {
	return fmt.Sprintf("no job available for execution in queue %s", e.QueueName)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var nf NotFoundError
	var um UnknownModuleError
	return errors.As(err, &nf) || errors.As(err, &um)
}

func IsInvalidTransition(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

func IsUnknownModule(err error) bool {
	var target UnknownModuleError
	return errors.As(err, &target)
}
