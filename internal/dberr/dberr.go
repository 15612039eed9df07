// Package dberr defines the error taxonomy shared by every layer of the
// engine (spec §7). Each category implements Category() so the server can
// map an error to client-visible text without string-sniffing.
package dberr

import "fmt"

type Category int

const (
	CategoryInternal Category = iota
	CategoryParse
	CategorySemantic
	CategoryIntegrity
	CategoryTransaction
	CategoryStorage
)

func (c Category) String() string {
	switch c {
	case CategoryParse:
		return "parse"
	case CategorySemantic:
		return "semantic"
	case CategoryIntegrity:
		return "integrity"
	case CategoryTransaction:
		return "transaction"
	case CategoryStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Err is the common shape for every taxonomy member: a stable Code, a
// human message, and an optional wrapped cause.
type Err struct {
	Code    string
	Cat     Category
	Message string
	Cause   error
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Err) Unwrap() error { return e.Cause }

func (e *Err) Category() Category { return e.Cat }

func new_(cat Category, code, msg string, cause error) *Err {
	return &Err{Code: code, Cat: cat, Message: msg, Cause: cause}
}

// Parse / semantic
func Syntax(msg string) error              { return new_(CategoryParse, "syntax_error", msg, nil) }
func TableNotFound(name string) error {
	return new_(CategorySemantic, "table_not_found", fmt.Sprintf("table %q not found", name), nil)
}
func ColumnNotFound(name string) error {
	return new_(CategorySemantic, "column_not_found", fmt.Sprintf("column %q not found", name), nil)
}
func AmbiguousColumn(name string) error {
	return new_(CategorySemantic, "ambiguous_column", fmt.Sprintf("column %q is ambiguous", name), nil)
}
func IncompatibleTypes(msg string) error {
	return new_(CategorySemantic, "incompatible_types", msg, nil)
}
func InvalidValueCount(expected, got int) error {
	return new_(CategorySemantic, "invalid_value_count",
		fmt.Sprintf("expected %d values, got %d", expected, got), nil)
}
func StringOverflow(col string, max int) error {
	return new_(CategorySemantic, "string_overflow",
		fmt.Sprintf("value for column %q exceeds %d bytes", col, max), nil)
}

// Integrity
func UniqueViolation(index string) error {
	return new_(CategoryIntegrity, "unique_violation", fmt.Sprintf("duplicate key for index %q", index), nil)
}
func IndexNotFound(name string) error {
	return new_(CategoryIntegrity, "index_not_found", fmt.Sprintf("index %q not found", name), nil)
}
func IndexExists(name string) error {
	return new_(CategoryIntegrity, "index_exists", fmt.Sprintf("index %q already exists", name), nil)
}
func TableExists(name string) error {
	return new_(CategoryIntegrity, "table_exists", fmt.Sprintf("table %q already exists", name), nil)
}
func DatabaseExists(name string) error {
	return new_(CategoryIntegrity, "database_exists", fmt.Sprintf("database %q already exists", name), nil)
}
func DatabaseMissing(name string) error {
	return new_(CategoryIntegrity, "database_missing", fmt.Sprintf("database %q does not exist", name), nil)
}
func TableNotEmpty(name string) error {
	return new_(CategoryIntegrity, "table_not_empty", fmt.Sprintf("table %q is not empty, cannot bulk load", name), nil)
}

// Transaction
func DeadlockPrevention(txnID uint64) error {
	return new_(CategoryTransaction, "deadlock_prevention",
		fmt.Sprintf("transaction %d aborted to prevent deadlock", txnID), nil)
}
func ExplicitAbort(txnID uint64) error {
	return new_(CategoryTransaction, "explicit_abort", fmt.Sprintf("transaction %d aborted", txnID), nil)
}

// Storage
func PageNotExist(fileID uint32, pageNo uint32) error {
	return new_(CategoryStorage, "page_not_exist", fmt.Sprintf("page %d:%d does not exist", fileID, pageNo), nil)
}
func RecordNotFound(pageNo, slotNo uint32) error {
	return new_(CategoryStorage, "record_not_found", fmt.Sprintf("record at %d:%d not found", pageNo, slotNo), nil)
}
func FileNotOpen(path string) error {
	return new_(CategoryStorage, "file_not_open", fmt.Sprintf("file %q is not open", path), nil)
}
func FileExists(path string) error {
	return new_(CategoryStorage, "file_exists", fmt.Sprintf("file %q already exists", path), nil)
}
func FileNotFound(path string) error {
	return new_(CategoryStorage, "file_not_found", fmt.Sprintf("file %q not found", path), nil)
}
func FileNotClosed(path string) error {
	return new_(CategoryStorage, "file_not_closed", fmt.Sprintf("file %q was not closed cleanly", path), nil)
}
func OS(cause error) error {
	return new_(CategoryStorage, "os_error", "underlying OS error", cause)
}

// Internal
func Unreachable(msg string) error {
	return new_(CategoryInternal, "unreachable", msg, nil)
}

// CategoryOf extracts the taxonomy category of err, defaulting to internal
// for errors CoreDB did not originate.
func CategoryOf(err error) Category {
	type categorized interface{ Category() Category }
	if c, ok := err.(categorized); ok {
		return c.Category()
	}
	return CategoryInternal
}

// IsDeadlockPrevention reports whether err is a wound-wait abort.
func IsDeadlockPrevention(err error) bool {
	e, ok := err.(*Err)
	return ok && e.Code == "deadlock_prevention"
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
func IsUniqueViolation(err error) bool {
	e, ok := err.(*Err)
	return ok && e.Code == "unique_violation"
}

// IsRecordNotFound reports whether err is a missing-record error. Recovery's
// redo pass uses this to tell "already applied" apart from a real failure
// when replaying idempotently.
func IsRecordNotFound(err error) bool {
	e, ok := err.(*Err)
	return ok && e.Code == "record_not_found"
}
