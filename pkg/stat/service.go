// Package stat answers file status queries for remote paths by parsing
// FTP directory listings.
//
// FTP has no stat call: the only way to learn anything about a remote
// file is to run LIST on its parent directory and read the answer. The
// package contains the two listing parsers (Unix "ls -l" style and
// DOS/Windows style), the auto-detection that picks the right format on
// first contact with a server, and a Service that builds listdir, lstat
// and stat on top of them. Parsed records flow through a bounded LRU
// cache so repeated lookups in the same directory cost one LIST round
// trip instead of many.
package stat

import (
	"context"
	"errors"
	"math"
	"path"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/marmos91/ftpfs/internal/logger"
)

// Lister fetches raw directory listings. It is the only thing the
// Service needs from the session layer.
type Lister interface {
	// ListLines runs LIST on the given absolute path and returns the
	// raw response lines without line endings.
	ListLines(ctx context.Context, path string) ([]string, error)
}

// Cache is the stat result cache consumed by the Service. It is
// implemented by *cache.StatCache.
type Cache interface {
	Get(path string) (*Result, bool)
	Set(path string, result *Result)
	Invalidate(path string)
	Clear()
	Resize(capacity int) error
	Len() int
	Capacity() int
	Enable()
	Disable()
	Enabled() bool
	SetMaxAge(maxAge time.Duration)
	MaxAge() time.Duration
}

// Service answers listdir, lstat and stat queries for remote paths.
//
// A fresh Service starts with the Unix parser and one chance to switch
// formats: the first parse error swaps in the DOS parser and retries
// the operation once. As soon as any operation returns at least one
// parsed entry, the listing format counts as confirmed and the parser
// is locked in. A listing with zero entries confirms nothing, so
// switching stays possible after listing empty directories.
//
// Results are shared with the cache; callers must not modify them.
type Service struct {
	lister Lister
	cache  Cache

	// cwd yields the current working directory of the session, used to
	// anchor relative paths. A nil cwd anchors them at the root.
	cwd func() string

	mu               sync.Mutex
	parser           Parser
	switchingAllowed bool
	timeShift        time.Duration
}

// NewService returns a Service reading listings through lister and
// caching results in cache.
func NewService(lister Lister, cache Cache, cwd func() string) *Service {
	return &Service{
		lister:           lister,
		cache:            cache,
		cwd:              cwd,
		parser:           NewUnixParser(),
		switchingAllowed: true,
	}
}

// Cache exposes the result cache for management operations such as
// invalidation and resizing.
func (s *Service) Cache() Cache {
	return s.cache
}

// SetParser installs a custom listing parser, drops all cached results
// and permanently disables format auto-detection.
func (s *Service) SetParser(parser Parser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Results produced under the previous format would shadow the new
	// parser's view of the server.
	s.cache.Clear()
	s.parser = parser
	s.switchingAllowed = false
	logger.Debug("Installed custom listing parser, auto-detection off")
}

// Parser returns the currently active listing parser.
func (s *Service) Parser() Parser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser
}

func (s *Service) currentDir() string {
	if s.cwd == nil {
		return "/"
	}
	return s.cwd()
}

// abspath anchors p at the current working directory and normalizes it.
func (s *Service) abspath(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.currentDir(), p)
}

// Listdir returns the names of all entries in the directory at p, in
// listing order. Stat results for every entry land in the cache as a
// side effect, so stat calls on the entries are free afterwards.
func (s *Service) Listdir(ctx context.Context, p string) ([]string, error) {
	var names []string
	err := s.callWithParserRetry(func() (bool, error) {
		var err error
		names, err = s.realListdir(ctx, p)
		return len(names) > 0, err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Lstat returns the stat result for p without following symlinks. A
// missing path yields a not-found error.
func (s *Service) Lstat(ctx context.Context, p string) (*Result, error) {
	return s.lstat(ctx, p, true)
}

// LstatIfExists is Lstat, except that a missing path yields (nil, nil)
// instead of a not-found error.
func (s *Service) LstatIfExists(ctx context.Context, p string) (*Result, error) {
	return s.lstat(ctx, p, false)
}

func (s *Service) lstat(ctx context.Context, p string, errorOnMissing bool) (*Result, error) {
	var result *Result
	err := s.callWithParserRetry(func() (bool, error) {
		var err error
		result, err = s.realLstat(ctx, p, errorOnMissing)
		return result != nil, err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stat returns the stat result for p, following symlinks. A missing
// path yields a not-found error.
func (s *Service) Stat(ctx context.Context, p string) (*Result, error) {
	return s.stat(ctx, p, true)
}

// StatIfExists is Stat, except that a missing path yields (nil, nil)
// instead of a not-found error.
func (s *Service) StatIfExists(ctx context.Context, p string) (*Result, error) {
	return s.stat(ctx, p, false)
}

func (s *Service) stat(ctx context.Context, p string, errorOnMissing bool) (*Result, error) {
	var result *Result
	err := s.callWithParserRetry(func() (bool, error) {
		var err error
		result, err = s.realStat(ctx, p, errorOnMissing)
		return result != nil, err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Exists reports whether p exists on the server. The root directory
// always exists, even though it cannot be stat'ed.
func (s *Service) Exists(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return false, nil
	}
	result, err := s.LstatIfExists(ctx, p)
	if err != nil {
		var statErr *Error
		if errors.As(err, &statErr) && statErr.Code == ErrRootDir {
			return true, nil
		}
		return false, err
	}
	return result != nil, nil
}

// IsDir reports whether p names a directory, following symlinks. A
// missing path is simply not a directory, as is a looping symlink
// chain. Parse and transport failures still surface as errors.
func (s *Service) IsDir(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return false, nil
	}
	return s.isEntity(ctx, p, true)
}

// IsFile reports whether p names a regular file, following symlinks.
// Missing paths and looping symlink chains are simply not files.
func (s *Service) IsFile(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return false, nil
	}
	return s.isEntity(ctx, p, false)
}

// isEntity answers IsDir (wantDir true) and IsFile (wantDir false).
func (s *Service) isEntity(ctx context.Context, p string, wantDir bool) (bool, error) {
	// The current directory may be unreachable from its parent, for
	// example on servers that chroot logins, so it is answered without
	// listing anything.
	if path.Clean(p) == s.currentDir() {
		return wantDir, nil
	}
	result, err := s.StatIfExists(ctx, p)
	if err != nil {
		var statErr *Error
		if errors.As(err, &statErr) {
			switch statErr.Code {
			case ErrRootDir:
				return wantDir, nil
			case ErrRecursiveLinks:
				return false, nil
			}
		}
		return false, err
	}
	if result == nil {
		return false, nil
	}
	if wantDir {
		return result.IsDir(), nil
	}
	return result.IsRegular(), nil
}

// IsLink reports whether p names a symbolic link. Missing paths are
// simply not links.
func (s *Service) IsLink(ctx context.Context, p string) (bool, error) {
	if p == "" {
		return false, nil
	}
	result, err := s.LstatIfExists(ctx, p)
	if err != nil {
		var statErr *Error
		if errors.As(err, &statErr) && statErr.Code == ErrRootDir {
			return false, nil
		}
		return false, err
	}
	if result == nil {
		return false, nil
	}
	return result.IsSymlink(), nil
}

// callWithParserRetry runs op once with the current parser. If op
// fails with a parse error and switching is still allowed, the DOS
// parser is swapped in, the format choice is locked and op reruns
// exactly once; any error from the rerun propagates as is. op reports
// whether it found at least one entry, which is what confirms the
// active format.
//
// Switching must not be locked on errors: a not-found in an empty
// directory says nothing about whether the parser fits the server.
func (s *Service) callWithParserRetry(op func() (found bool, err error)) error {
	found, err := op()
	if err == nil {
		if found {
			s.lockParser()
		}
		return nil
	}
	var statErr *Error
	if errors.As(err, &statErr) && statErr.Code == ErrParse && s.parserSwitchingAllowed() {
		s.switchToMSParser()
		_, err = op()
		return err
	}
	return err
}

func (s *Service) parserSwitchingAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switchingAllowed
}

func (s *Service) lockParser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchingAllowed = false
}

func (s *Service) switchToMSParser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchingAllowed = false
	s.parser = NewMSParser()
	logger.Debug("Listing didn't parse as Unix format, switching to DOS parser")
}

// realListdir lists the directory at p and returns the entry names in
// listing order.
func (s *Service) realListdir(ctx context.Context, p string) ([]string, error) {
	p = s.abspath(p)
	isDir, err := s.IsDir(ctx, p)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, &Error{
			Code:    ErrNotFound,
			Message: "no such directory or wrong directory parser used",
			Path:    p,
		}
	}
	results, err := s.statResultsFromDir(ctx, p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(results))
	for _, result := range results {
		names = append(names, result.Name)
	}
	return names, nil
}

// realLstat resolves the stat result for p by listing its parent
// directory. errorOnMissing selects between a not-found error and a
// plain (nil, nil) for paths that are not in the listing.
func (s *Service) realLstat(ctx context.Context, p string, errorOnMissing bool) (*Result, error) {
	p = s.abspath(p)
	if result, ok := s.cache.Get(p); ok {
		return result, nil
	}
	// Stat works by listing the parent directory, so the root, having
	// no parent, can never be stat'ed.
	if p == "/" {
		return nil, &Error{Code: ErrRootDir, Message: "can't stat remote root directory"}
	}
	dirname, basename := path.Dir(p), path.Base(p)
	if !errorOnMissing {
		// The IsDir recursion terminates at the latest at the root.
		isDir, err := s.IsDir(ctx, dirname)
		if err != nil {
			return nil, err
		}
		if !isDir {
			return nil, nil
		}
	}
	// Scan the whole listing rather than stopping at the first match:
	// this fills the cache with all siblings, and with duplicate names
	// the last entry wins, like it does for listing-based clients.
	var found *Result
	results, err := s.statResultsFromDir(ctx, dirname)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		if result.Name == basename {
			found = result
		}
	}
	if found != nil {
		return found, nil
	}
	if errorOnMissing {
		return nil, &Error{
			Code:    ErrNotFound,
			Message: "no such file or directory",
			Path:    p,
		}
	}
	return nil, nil
}

// realStat is realLstat plus symlink resolution. Each link target is
// resolved against the directory containing the link; a set of all
// resolved paths catches cyclic chains before they loop forever.
func (s *Service) realStat(ctx context.Context, p string, errorOnMissing bool) (*Result, error) {
	originalPath := s.abspath(p)
	p = originalPath
	visited := mapset.NewThreadUnsafeSet[string]()
	for {
		lstatResult, err := s.realLstat(ctx, p, errorOnMissing)
		if err != nil {
			var statErr *Error
			if errors.As(err, &statErr) && statErr.Code == ErrNotFound {
				// Report the path the caller asked about, not the
				// intermediate link target it resolved to.
				return nil, &Error{
					Code:    ErrNotFound,
					Message: statErr.Message,
					Path:    originalPath,
				}
			}
			return nil, err
		}
		if lstatResult == nil {
			return nil, nil
		}
		if !lstatResult.IsSymlink() {
			return lstatResult, nil
		}
		p = s.abspath(path.Join(path.Dir(p), lstatResult.LinkTarget))
		if visited.Contains(p) {
			return nil, &Error{
				Code:    ErrRecursiveLinks,
				Message: "recursive link structure detected",
				Path:    originalPath,
			}
		}
		visited.Add(p)
	}
}

// statResultsFromDir lists dirPath, parses every entry line and caches
// each result under its absolute path. Noise lines and the synthetic
// "." and ".." entries are skipped.
func (s *Service) statResultsFromDir(ctx context.Context, dirPath string) ([]*Result, error) {
	lines, err := s.lister.ListLines(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	// Grow the cache ahead of parsing when this directory alone would
	// overflow it, with a margin so a handful of additional entries
	// doesn't evict what was just stored.
	if s.cache.Enabled() && len(lines) >= s.cache.Capacity() {
		if err := s.cache.Resize(int(math.Ceil(1.1 * float64(len(lines))))); err != nil {
			return nil, err
		}
	}
	parser := s.Parser()
	timeShift := s.TimeShift()
	results := make([]*Result, 0, len(lines))
	for _, line := range lines {
		if parser.IgnoresLine(line) {
			continue
		}
		result, err := parser.ParseLine(line, timeShift)
		if err != nil {
			return nil, err
		}
		if result.Name == "." || result.Name == ".." {
			continue
		}
		s.cache.Set(path.Join(dirPath, result.Name), result)
		results = append(results, result)
	}
	return results, nil
}
