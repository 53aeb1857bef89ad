package react

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"strings"

	"github.com/martinemde/reactor/llm"
)

// ErrorKind classifies a failure for the retry policy.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindUnknown    ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind may succeed on retry.
// Unknown failures are treated as transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

// ToolError is a tool execution failure with its classification.
type ToolError struct {
	Tool string
	Kind ErrorKind
	Err  error
}

// NewToolError wraps err with an explicit kind. Tools use it when they know
// better than message sniffing.
func NewToolError(kind ErrorKind, err error) *ToolError {
	return &ToolError{Kind: kind, Err: err}
}

func (e *ToolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("tool %s failed (%s): %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ParseError reports model output that did not contain a usable action.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse model output: %s", e.Reason)
}

// UnknownToolError reports a tool name that could not be resolved.
type UnknownToolError struct {
	Name       string
	Suggestion string
}

func (e *UnknownToolError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown tool %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ToolInputValidationError rejects arguments before execution.
type ToolInputValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ToolInputValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input for %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("invalid input for %s: field %q %s", e.Tool, e.Field, e.Message)
}

type kindMatcher struct {
	kind     ErrorKind
	patterns []*regexp.Regexp
}

// messageMatchers classify errors that carry no type information.
var messageMatchers = []kindMatcher{
	{KindTimeout, []*regexp.Regexp{
		regexp.MustCompile(`timeout`),
		regexp.MustCompile(`timed out`),
		regexp.MustCompile(`deadline exceeded`),
	}},
	{KindPermission, []*regexp.Regexp{
		regexp.MustCompile(`permission denied`),
		regexp.MustCompile(`access denied`),
		regexp.MustCompile(`operation not permitted`),
		regexp.MustCompile(`forbidden`),
	}},
	{KindNetwork, []*regexp.Regexp{
		regexp.MustCompile(`connection (refused|reset)`),
		regexp.MustCompile(`reset by peer`),
		regexp.MustCompile(`no such host`),
		regexp.MustCompile(`rate limit`),
		regexp.MustCompile(`too many requests`),
		regexp.MustCompile(`\beof\b`),
	}},
	{KindValidation, []*regexp.Regexp{
		regexp.MustCompile(`no such file`),
		regexp.MustCompile(`not found`),
		regexp.MustCompile(`invalid argument`),
		regexp.MustCompile(`is a directory`),
		regexp.MustCompile(`not a directory`),
	}},
}

// ClassifyError maps any error to an ErrorKind: explicit ToolError kinds
// first, then well-known error types, then message patterns.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.Kind != "" {
		return toolErr.Kind
	}
	var inputErr *ToolInputValidationError
	if errors.As(err, &inputErr) {
		return KindValidation
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, fs.ErrNotExist):
		return KindValidation
	}

	if kind, ok := classifyLLMError(err); ok {
		return kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, m := range messageMatchers {
		for _, re := range m.patterns {
			if re.MatchString(msg) {
				return m.kind
			}
		}
	}
	return KindUnknown
}

func classifyLLMError(err error) (ErrorKind, bool) {
	var (
		timeoutErr  *llm.RequestTimeoutError
		networkErr  *llm.NetworkError
		rateErr     *llm.RateLimitError
		serverErr   *llm.ServerError
		authErr     *llm.AuthenticationError
		deniedErr   *llm.AccessDeniedError
		invalidErr  *llm.InvalidRequestError
		lengthErr   *llm.ContextLengthError
		configErr   *llm.ConfigurationError
		notFoundErr *llm.NotFoundError
		filterErr   *llm.ContentFilterError
		providerErr *llm.ProviderError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return KindTimeout, true
	case errors.As(err, &networkErr), errors.As(err, &rateErr), errors.As(err, &serverErr):
		return KindNetwork, true
	case errors.As(err, &authErr), errors.As(err, &deniedErr):
		return KindPermission, true
	case errors.As(err, &invalidErr), errors.As(err, &lengthErr), errors.As(err, &configErr),
		errors.As(err, &notFoundErr), errors.As(err, &filterErr):
		return KindValidation, true
	case errors.As(err, &providerErr):
		if providerErr.Retryable {
			return KindUnknown, true
		}
		return KindValidation, true
	}
	return "", false
}
