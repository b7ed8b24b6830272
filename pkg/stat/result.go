package stat

import "time"

// Precision bounds how far a parsed modification time may be off from
// the real one on the server. Directory listings rarely carry full
// timestamps, so every Result records how much of the time could
// actually be recovered.
type Precision time.Duration

const (
	// PrecisionUnknown marks timestamps that could not be recovered at
	// all, for example dates before the Unix epoch.
	PrecisionUnknown Precision = 0

	// PrecisionMinute marks timestamps parsed from an "HH:MM" field.
	PrecisionMinute Precision = Precision(time.Minute)

	// PrecisionDay marks timestamps parsed from a bare year, where the
	// listing gives no time of day at all.
	PrecisionDay Precision = Precision(24 * time.Hour)
)

// POSIX file type and permission bits as they appear in Result.Mode.
const (
	ModeTypeMask uint32 = 0o170000

	ModeSocket   uint32 = 0o140000
	ModeSymlink  uint32 = 0o120000
	ModeRegular  uint32 = 0o100000
	ModeBlockDev uint32 = 0o060000
	ModeDir      uint32 = 0o040000
	ModeCharDev  uint32 = 0o020000
	ModeFIFO     uint32 = 0o010000

	ModeSetuid uint32 = 0o4000
	ModeSetgid uint32 = 0o2000
)

// Result is one parsed line of a remote directory listing, shaped like
// a Unix stat result.
//
// Listings never carry inode or device numbers, so the record has no
// fields for them. Fields a listing format cannot supply are nil
// pointers (Nlink, Size) or empty strings (Owner, Group, LinkTarget).
//
// Results are shared between callers and the stat cache, so they must
// be treated as read-only after construction.
type Result struct {
	// Mode holds the POSIX file type and permission bits.
	Mode uint32

	// Nlink is the hard link count, if the listing reports one.
	Nlink *int

	// Owner and Group are the owner and group columns of the listing.
	// Servers report either names or numeric ids here, so both stay
	// strings. Empty means the column was absent from the listing.
	Owner string
	Group string

	// Size is the size in bytes. DOS-style listings report no size for
	// directories, in which case Size is nil.
	Size *int64

	// MTime is the modification time reconstructed from the listing,
	// in UTC and already corrected for the configured time shift.
	MTime time.Time

	// MTimePrecision says how much of MTime is trustworthy.
	MTimePrecision Precision

	// Name is the entry name exactly as listed, with any symlink
	// target suffix stripped off.
	Name string

	// LinkTarget is the symlink target for symlink entries, empty
	// otherwise.
	LinkTarget string
}

// IsDir reports whether the record describes a directory.
func (r *Result) IsDir() bool {
	return r.Mode&ModeTypeMask == ModeDir
}

// IsSymlink reports whether the record describes a symbolic link.
func (r *Result) IsSymlink() bool {
	return r.Mode&ModeTypeMask == ModeSymlink
}

// IsRegular reports whether the record describes a regular file.
func (r *Result) IsRegular() bool {
	return r.Mode&ModeTypeMask == ModeRegular
}
