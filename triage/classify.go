package triage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"google.golang.org/protobuf/proto"
)

// Classifier reports the severity of errors it recognizes.
// It returns false for errors it knows nothing about.
type Classifier func(err error) (Severity, bool)

// Table is an ordered set of classifiers consulted by Of.
// The first classifier that recognizes an error decides its severity.
type Table struct {
	mu          sync.RWMutex
	classifiers []Classifier
}

// NewTable creates a table with the given classifiers
func NewTable(classifiers ...Classifier) *Table {
	return &Table{classifiers: classifiers}
}

// DefaultTable holds the classifiers used by the package level Of.
// Applications register classifiers for foreign error types here.
var DefaultTable = NewTable(
	classifyRuntime,
	classifyKafka,
	classifyNetwork,
	classifyHTTP,
	classifyMalformed,
)

// Register appends a classifier. Registered classifiers run after the
// built-in ones.
func (t *Table) Register(c Classifier) {
	if c == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classifiers = append(t.classifiers, c)
}

// Of returns the severity of err using the default table
func Of(err error) Severity {
	return DefaultTable.Of(err)
}

// Of returns the severity of err.
//
// The wrap chain is walked first: the outermost error implementing Triager
// decides. Joined errors resolve to their most severe member. Otherwise the
// classifiers are consulted in order. Unrecognized errors, and nil, are
// Permanent.
func (t *Table) Of(err error) Severity {
	if err == nil {
		return Permanent
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if tr, ok := e.(Triager); ok {
			return tr.Severity()
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			return t.worst(joined.Unwrap())
		}
	}

	t.mu.RLock()
	classifiers := t.classifiers
	t.mu.RUnlock()

	for _, classify := range classifiers {
		if s, ok := classify(err); ok {
			return s
		}
	}
	return Permanent
}

// worst returns the most severe classification among errs
func (t *Table) worst(errs []error) Severity {
	result := Transient
	seen := false
	for _, e := range errs {
		if e == nil {
			continue
		}
		seen = true
		if s := t.Of(e); s > result {
			result = s
		}
	}
	if !seen {
		return Permanent
	}
	return result
}

// classifyRuntime treats recovered runtime panics as fatal
func classifyRuntime(err error) (Severity, bool) {
	var re runtime.Error
	if errors.As(err, &re) {
		return Fatal, true
	}
	return 0, false
}

var transientErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ENOTCONN,
	syscall.ETIMEDOUT,
	syscall.EAGAIN,
	syscall.EINTR,
	syscall.EPIPE,
}

func classifyNetwork(err error) (Severity, bool) {
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return Transient, true
		}
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Transient, true
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return Permanent, true
	}

	var parseErr *net.ParseError
	if errors.As(err, &parseErr) {
		return Permanent, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return Permanent, true
		}
		return Transient, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient, true
	}

	return 0, false
}

func classifyMalformed(err error) (Severity, bool) {
	var (
		numErr       *strconv.NumError
		syntaxErr    *json.SyntaxError
		typeErr      *json.UnmarshalTypeError
		invalidErr   *json.InvalidUnmarshalError
		base64Err    base64.CorruptInputError
		hexErr       hex.InvalidByteError
		urlEscapeErr url.EscapeError
	)

	switch {
	case errors.Is(err, proto.Error),
		errors.Is(err, hex.ErrLength),
		errors.As(err, &numErr),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr),
		errors.As(err, &invalidErr),
		errors.As(err, &base64Err),
		errors.As(err, &hexErr),
		errors.As(err, &urlEscapeErr):
		return Permanent, true
	}
	return 0, false
}
