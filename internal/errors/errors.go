package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrorType represents the type of error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypePrecondition
	ErrorTypeFileNotFound
	ErrorTypeFormat
	ErrorTypeExternalTool
	ErrorTypeStructuralAssumption
	ErrorTypeMergeConflict
	ErrorTypeConfiguration
	ErrorTypeFileSystem
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypePrecondition:
		return "PRECONDITION"
	case ErrorTypeFileNotFound:
		return "FILE_NOT_FOUND"
	case ErrorTypeFormat:
		return "FORMAT"
	case ErrorTypeExternalTool:
		return "EXTERNAL_TOOL"
	case ErrorTypeStructuralAssumption:
		return "STRUCTURAL_ASSUMPTION"
	case ErrorTypeMergeConflict:
		return "MERGE_CONFLICT"
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	default:
		return "UNKNOWN"
	}
}

// PatchError represents an error with context and suggestions
type PatchError struct {
	Type        ErrorType         `json:"type"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Stage       string            `json:"stage,omitempty"`
	Cause       error             `json:"-"`
	CauseText   string            `json:"cause,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Stack       []string          `json:"stack,omitempty"`
}

// Error implements the error interface
func (e *PatchError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PatchError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target. A target without a code
// matches every error of the same type.
func (e *PatchError) Is(target error) bool {
	t, ok := target.(*PatchError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Type == t.Type
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *PatchError) WithContext(key, value string) *PatchError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithStage tags the error with the pipeline stage it was raised in.
// An existing tag is kept so the innermost stage wins.
func (e *PatchError) WithStage(stage string) *PatchError {
	if e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *PatchError) WithSuggestion(suggestion string) *PatchError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *PatchError) WithSuggestions(suggestions []string) *PatchError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// FormatDetailed returns a detailed error message with context and suggestions
func (e *PatchError) FormatDetailed() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("%s error [%s]: %s\n", e.Type.String(), e.Code, e.Message))
	if e.Stage != "" {
		builder.WriteString(fmt.Sprintf("Stage: %s\n", e.Stage))
	}

	if len(e.Context) > 0 {
		builder.WriteString("\nContext:\n")
		for _, key := range sortedKeys(e.Context) {
			builder.WriteString(fmt.Sprintf("   %s: %s\n", key, e.Context[key]))
		}
	}

	if e.Cause != nil {
		builder.WriteString(fmt.Sprintf("\nUnderlying cause: %v\n", e.Cause))
	} else if e.CauseText != "" {
		builder.WriteString(fmt.Sprintf("\nUnderlying cause: %s\n", e.CauseText))
	}

	if len(e.Suggestions) > 0 {
		builder.WriteString("\nSuggestions:\n")
		for _, suggestion := range e.Suggestions {
			builder.WriteString(fmt.Sprintf("   - %s\n", suggestion))
		}
	}

	return builder.String()
}

// NewError creates a new PatchError
func NewError(errorType ErrorType, code, message string) *PatchError {
	return &PatchError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Stack:     captureStack(),
	}
}

// WrapError wraps an existing error with PatchError
func WrapError(err error, errorType ErrorType, code, message string) *PatchError {
	e := NewError(errorType, code, message)
	e.Cause = err
	if err != nil {
		e.CauseText = err.Error()
	}
	return e
}

// captureStack captures the current stack trace
func captureStack() []string {
	var stack []string

	// Skip this function and the constructor
	for i := 2; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		if strings.Contains(file, "xapk-patcher") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}

	return stack
}

// As finds the first PatchError in err's chain
func As(err error) (*PatchError, bool) {
	var pe *PatchError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsType reports whether err carries a PatchError of the given type
func IsType(err error, errorType ErrorType) bool {
	return stderrors.Is(err, &PatchError{Type: errorType})
}

// Common error constructors

// NewPreconditionError creates a precondition error
func NewPreconditionError(code, message string) *PatchError {
	return NewError(ErrorTypePrecondition, code, message).
		WithSuggestion("Run 'xapk-patcher doctor' to check the environment")
}

// NewFileNotFoundError creates a missing file error
func NewFileNotFoundError(path string) *PatchError {
	return NewError(ErrorTypeFileNotFound, "FILE_NOT_FOUND", fmt.Sprintf("file not found: %s", path)).
		WithContext("path", path).
		WithSuggestion("Check the path or identifier")
}

// NewFormatError creates a wrong file type error
func NewFormatError(path, want string) *PatchError {
	return NewError(ErrorTypeFormat, "UNEXPECTED_EXTENSION",
		fmt.Sprintf("%s is not a %s file", path, want)).
		WithContext("path", path).
		WithContext("expected", want).
		WithSuggestion("Pass an .apk, .xapk or .apkm file")
}

// NewExternalToolError creates an error for a tool that exited with a non-zero status
func NewExternalToolError(tool string, exitCode int, output string) *PatchError {
	e := NewError(ErrorTypeExternalTool, "TOOL_FAILED",
		fmt.Sprintf("%s exited with status %d", tool, exitCode)).
		WithContext("tool", tool).
		WithContext("exit_code", fmt.Sprintf("%d", exitCode))
	if output != "" {
		e.WithContext("output", output)
	}
	return e.WithSuggestions([]string{
		"Inspect the tool output above",
		"Intermediate directories are kept in the work root for diagnosis",
	})
}

// NewStructuralError creates an error for a document the pipeline expected to find
func NewStructuralError(code, path string) *PatchError {
	return NewError(ErrorTypeStructuralAssumption, code, fmt.Sprintf("expected document missing: %s", path)).
		WithContext("path", path).
		WithSuggestion("Check that the decompiler produced a complete project tree")
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *PatchError {
	return NewError(ErrorTypeConfiguration, code, message).
		WithSuggestions([]string{
			"Check the configuration file syntax",
			"Verify all required settings are present",
		})
}

// NewFileSystemError creates a filesystem error
func NewFileSystemError(code, message string, cause error) *PatchError {
	return WrapError(cause, ErrorTypeFileSystem, code, message).
		WithSuggestions([]string{
			"Check file permissions",
			"Verify disk space availability",
		})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
