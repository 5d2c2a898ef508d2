package rpcpool

import (
	"context"
	"errors"
	"net"
	"strings"
)

// errClass is the classification of §4.1: transient errors are retried
// against the next endpoint, permanent errors fail immediately, and
// deterministic-chain errors are returned to the caller untouched. A fourth
// class, account-not-found, is returned to the caller without retry in the
// same way as a deterministic-chain error.
type errClass int

const (
	classTransient errClass = iota
	classPermanent
	classDeterministicChain
	classAccountNotFound
)

// classifyErr wraps a transport error with its retry classification into
// the classes of errClass.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedErr{class: classify(err), cause: err}
}

func classify(err error) errClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "eof"),
		strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return classTransient
	case strings.Contains(msg, "blockhash not found"), strings.Contains(msg, "node is behind"):
		return classTransient
	case strings.Contains(msg, "account not found"), strings.Contains(msg, "could not find account"):
		return classAccountNotFound
	case strings.Contains(msg, "instruction error"), strings.Contains(msg, "custom program error"),
		strings.Contains(msg, "insufficient funds"):
		return classDeterministicChain
	default:
		return classPermanent
	}
}

type classifiedErr struct {
	class errClass
	cause error
}

func (e *classifiedErr) Error() string { return e.cause.Error() }
func (e *classifiedErr) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var c *classifiedErr
	if errors.As(err, &c) {
		return c.class == classTransient
	}
	return false
}

func isDeterministicChain(err error) bool {
	var c *classifiedErr
	if errors.As(err, &c) {
		return c.class == classDeterministicChain
	}
	return false
}

func isAccountNotFound(err error) bool {
	var c *classifiedErr
	if errors.As(err, &c) {
		return c.class == classAccountNotFound
	}
	return false
}
