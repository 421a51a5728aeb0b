package scan

import "fmt"

// ParseErrorKind enumerates why a raw scan could not be normalized.
type ParseErrorKind int

const (
	EmptyPayload ParseErrorKind = iota + 1
)

// ParseError is returned by Normalize.
type ParseError struct {
	Kind ParseErrorKind
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case EmptyPayload:
		return "scan: empty payload"
	default:
		return "scan: unparseable payload"
	}
}

// ScanErrorKind enumerates resolution failures.
type ScanErrorKind int

const (
	MissingSectionContext ScanErrorKind = iota + 1
	SectionMismatch
	StudentNotFound
)

func (k ScanErrorKind) String() string {
	switch k {
	case MissingSectionContext:
		return "missing section context"
	case SectionMismatch:
		return "section mismatch"
	case StudentNotFound:
		return "student not found"
	default:
		return "unknown"
	}
}

// ScanError reports a payload that parsed but cannot be applied to the
// active section. Expected/Got are set for SectionMismatch, StudentID for
// StudentNotFound.
type ScanError struct {
	Kind      ScanErrorKind
	Expected  string
	Got       string
	StudentID string
}

func (e *ScanError) Error() string {
	switch e.Kind {
	case SectionMismatch:
		return fmt.Sprintf("scan: section mismatch: expected %s, got %s", e.Expected, e.Got)
	case StudentNotFound:
		return fmt.Sprintf("scan: student %s not enrolled in section", e.StudentID)
	default:
		return "scan: " + e.Kind.String()
	}
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &ScanError{Kind: SectionMismatch}).
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	return ok && t.Kind == e.Kind
}
