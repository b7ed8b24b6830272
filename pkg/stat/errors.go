package stat

// Error represents a domain error from stat operations.
//
// These are remote filesystem conditions (path not found, listing line
// not parseable, etc.) as opposed to transport errors, which originate
// in the session layer and pass through this package unchanged.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the remote path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a stat error.
type ErrorCode int

const (
	// ErrNotFound indicates the path does not appear in its parent
	// directory's listing, or the directory to list does not exist.
	// Existence checks rely on this being distinguishable, so it is a
	// regular outcome rather than a fault.
	ErrNotFound ErrorCode = iota

	// ErrParse indicates a listing line that the active parser cannot
	// interpret, after any permitted parser switch. This usually means
	// the server emits a listing format the parsers do not know.
	ErrParse

	// ErrRootDir indicates a stat call on the remote root directory.
	// Stat works by listing the parent directory, and the root has no
	// parent, so the root itself can never be stat'ed.
	ErrRootDir

	// ErrRecursiveLinks indicates a chain of symbolic links that loops
	// back on itself and can never resolve to a file.
	ErrRecursiveLinks

	// ErrTimeShift indicates a server/client time shift value that
	// cannot come from a plausible clock or time zone offset.
	ErrTimeShift
)
