package odoo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"syscall"
	"testing"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	cases := []struct {
		name     string
		err      error
		category error
		message  string
	}{
		{"refused", refused, apperrors.ErrTransient, "connection refused, check that the Odoo server is running"},
		{"deadline", context.DeadlineExceeded, apperrors.ErrTransient, "request timed out"},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), apperrors.ErrTransient, "request timed out"},
		{"shutdown", rpc.ErrShutdown, apperrors.ErrTransient, "connection to the Odoo server was closed"},
		{"access denied", rpc.ServerError("Fault(3): Access Denied"), apperrors.ErrAuthentication, "access denied: Access Denied"},
		{"session expired", rpc.ServerError("Fault(1): Session expired"), apperrors.ErrAuthentication, "access denied: Session expired"},
		{
			"validation",
			rpc.ServerError("Fault(1): Traceback (most recent call last):\n  File \"x.py\"\nodoo.exceptions.ValidationError: The name must be unique\n"),
			apperrors.ErrRemoteValidation,
			"Validation Error: The name must be unique",
		},
		{
			"validation tuple",
			rpc.ServerError("Fault(2): Traceback\nValidationError: ('Email is invalid', None)\n"),
			apperrors.ErrRemoteValidation,
			"Validation Error: Email is invalid",
		},
		{"user error", rpc.ServerError("Fault(2): odoo.exceptions.UserError: Cannot confirm an empty order"), apperrors.ErrRemoteValidation, "Cannot confirm an empty order"},
		{
			"traceback last line",
			rpc.ServerError("Fault(1): Traceback (most recent call last):\n  File \"x.py\"\nodoo.exceptions.MissingError: Record does not exist or has been deleted.\n\n"),
			apperrors.ErrRemoteValidation,
			"Record does not exist or has been deleted.",
		},
		{"unknown", errors.New("boom"), apperrors.ErrInternal, "boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.ErrorIs(t, got, tc.category)
			assert.Equal(t, tc.message, got.Error())
		})
	}
}

func TestClassifyKeepsFaultAndCause(t *testing.T) {
	err := Classify(rpc.ServerError("Fault(4): odoo.exceptions.ValidationError: bad"))

	var fault *Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, 4, fault.Code)
	assert.Same(t, err, Classify(err))
	assert.Nil(t, Classify(nil))
}
