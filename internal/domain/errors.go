package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared by every stage of execution.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidTokenIdentifier = errors.New("invalid token identifier")
	ErrNotFound               = errors.New("not found")
	ErrCurveComplete          = errors.New("bonding curve complete")
	ErrApprovalRejected       = errors.New("approval rejected")
	ErrApprovalExpired        = errors.New("approval expired")
	ErrApprovalCancelled      = errors.New("approval cancelled")
	ErrEndpointUnavailable    = errors.New("no healthy endpoint")
	ErrSubmissionFailed       = errors.New("submission failed")
	ErrTransactionFailed      = errors.New("transaction failed on chain")
	ErrConfirmationTimeout    = errors.New("confirmation timeout")
	ErrSigningFailed          = errors.New("signing failed")
)

// ErrorCode is the classified failure reported in a TradeResult.
type ErrorCode string

const (
	CodeNone                ErrorCode = ""
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeCurveComplete       ErrorCode = "CURVE_COMPLETE"
	CodeApprovalRejected    ErrorCode = "APPROVAL_REJECTED"
	CodeApprovalExpired     ErrorCode = "APPROVAL_EXPIRED"
	CodeApprovalCancelled   ErrorCode = "APPROVAL_CANCELLED"
	CodeEndpointUnavailable ErrorCode = "ENDPOINT_UNAVAILABLE"
	CodeSubmissionFailed    ErrorCode = "SUBMISSION_FAILED"
	CodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	CodeTimeout             ErrorCode = "CONFIRMATION_TIMEOUT"
	CodeSigningFailed       ErrorCode = "SIGNING_FAILED"
	CodeCancelled           ErrorCode = "CANCELLED"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Retryable reports whether the orchestrator may re-route after this code.
func (c ErrorCode) Retryable() bool {
	return c == CodeNotFound || c == CodeCurveComplete
}

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidTokenIdentifier, CodeInvalidInput},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrCurveComplete, CodeCurveComplete},
	{ErrNotFound, CodeNotFound},
	{ErrApprovalRejected, CodeApprovalRejected},
	{ErrApprovalExpired, CodeApprovalExpired},
	{ErrApprovalCancelled, CodeApprovalCancelled},
	{ErrEndpointUnavailable, CodeEndpointUnavailable},
	{ErrSubmissionFailed, CodeSubmissionFailed},
	{ErrTransactionFailed, CodeTransactionFailed},
	{ErrConfirmationTimeout, CodeTimeout},
	{ErrSigningFailed, CodeSigningFailed},
	// A bare context error only surfaces before a signature exists; once
	// submitted, the confirmer reports an unobserved outcome as a timeout.
	{context.DeadlineExceeded, CodeCancelled},
	{context.Canceled, CodeCancelled},
}

// Classify maps an error chain to its ErrorCode.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}
