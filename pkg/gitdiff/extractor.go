// Package gitdiff extracts changed files and per-file diff statistics from
// a git repository via libgit2. Version-control unavailability is a soft
// failure: every entry point reports ErrUnavailable and callers degrade to
// an empty change set instead of aborting selection.
package gitdiff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/testfang/pkg/stats"
)

// ErrUnavailable marks a repository that cannot be opened or resolved.
// Analyzers degrade to empty change sets when they see it.
var ErrUnavailable = errors.New("version control unavailable")

// Default revision specs for change extraction.
const (
	DefaultBase = "HEAD~1"
	DefaultHead = "HEAD"
)

// magnitudeNormalization caps change magnitude at this many changed lines.
const magnitudeNormalization = 100.0

// Hunk is one contiguous changed region of a file diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
}

// FileDiff holds per-file diff statistics.
type FileDiff struct {
	Path     string
	Hunks    []Hunk
	Added    int
	Removed  int
	Modified int
}

// Extractor reads change information from one git repository. All calls
// are blocking and in-process (libgit2); callers that need bounded latency
// wrap invocations with context deadlines of their own.
type Extractor struct {
	logger   *slog.Logger
	repoPath string
}

// NewExtractor creates an extractor rooted at repoPath. The repository is
// opened per call so that availability is probed fresh each time.
func NewExtractor(repoPath string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{repoPath: repoPath, logger: logger}
}

// Available reports whether the path holds an openable git repository.
func (e *Extractor) Available() bool {
	repo, err := e.open()
	if err != nil {
		return false
	}

	repo.Free()

	return true
}

// ChangedFiles returns the ordered list of source files changed between the
// base and head revspecs. Unresolvable revisions (for example a repository
// with a single commit and base HEAD~1) yield ErrUnavailable.
func (e *Extractor) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("changed files: %w", err)
	}

	repo, err := e.open()
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	diff, err := e.diffRevisions(repo, base, head, "")
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("%w: num deltas: %v", ErrUnavailable, err)
	}

	files := make([]string, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			continue
		}

		path := delta.NewFile.Path
		if path == "" {
			path = delta.OldFile.Path
		}

		if IsSourceFile(path) {
			files = append(files, path)
		}
	}

	return files, nil
}

// UncommittedChanges returns modified tracked plus untracked source files.
func (e *Extractor) UncommittedChanges(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("uncommitted changes: %w", err)
	}

	repo, err := e.open()
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	statusList, err := repo.StatusList(&git2go.StatusOptions{
		Show:  git2go.StatusShowIndexAndWorkdir,
		Flags: git2go.StatusOptIncludeUntracked,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: status: %v", ErrUnavailable, err)
	}
	defer statusList.Free()

	count, err := statusList.EntryCount()
	if err != nil {
		return nil, fmt.Errorf("%w: status entries: %v", ErrUnavailable, err)
	}

	var files []string

	seen := make(map[string]struct{})

	for i := range count {
		entry, entryErr := statusList.ByIndex(i)
		if entryErr != nil {
			continue
		}

		path := statusEntryPath(entry)
		if path == "" || !IsSourceFile(path) {
			continue
		}

		if _, dup := seen[path]; dup {
			continue
		}

		seen[path] = struct{}{}

		files = append(files, path)
	}

	return files, nil
}

// DiffStats returns diff statistics for one file between base and head.
func (e *Extractor) DiffStats(ctx context.Context, path, base, head string) (*FileDiff, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("diff stats: %w", err)
	}

	repo, err := e.open()
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	diff, err := e.diffRevisions(repo, base, head, path)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	fileDiff := &FileDiff{Path: path}

	err = diff.ForEach(func(_ git2go.DiffDelta, _ float64) (git2go.DiffForEachHunkCallback, error) {
		return func(hunk git2go.DiffHunk) (git2go.DiffForEachLineCallback, error) {
			fileDiff.Hunks = append(fileDiff.Hunks, Hunk{
				OldStart: hunk.OldStart,
				OldLines: hunk.OldLines,
				NewStart: hunk.NewStart,
				NewLines: hunk.NewLines,
			})

			return func(line git2go.DiffLine) error {
				switch line.Origin {
				case git2go.DiffLineAddition:
					fileDiff.Added++
				case git2go.DiffLineDeletion:
					fileDiff.Removed++
				case git2go.DiffLineContext, git2go.DiffLineContextEOFNL,
					git2go.DiffLineAddEOFNL, git2go.DiffLineDelEOFNL,
					git2go.DiffLineFileHdr, git2go.DiffLineHunkHdr, git2go.DiffLineBinary:
				}

				return nil
			}, nil
		}, nil
	}, git2go.DiffDetailLines)
	if err != nil {
		return nil, fmt.Errorf("%w: diff lines: %v", ErrUnavailable, err)
	}

	fileDiff.Modified = min(fileDiff.Added, fileDiff.Removed)

	return fileDiff, nil
}

// ChangeMagnitude estimates how large a file's change is on a [0,1] scale,
// normalized at 100 changed lines.
func (e *Extractor) ChangeMagnitude(ctx context.Context, path string) float64 {
	diff, err := e.DiffStats(ctx, path, DefaultBase, DefaultHead)
	if err != nil {
		return 0
	}

	total := float64(diff.Added + diff.Removed)

	return stats.Clamp(total/magnitudeNormalization, 0, 1)
}

// ChangedLineNumbers returns the set of new-revision line numbers covered
// by the file's diff hunks.
func (e *Extractor) ChangedLineNumbers(ctx context.Context, path string) (map[int]struct{}, error) {
	diff, err := e.DiffStats(ctx, path, DefaultBase, DefaultHead)
	if err != nil {
		return nil, err
	}

	lines := make(map[int]struct{})

	for _, hunk := range diff.Hunks {
		for line := hunk.NewStart; line < hunk.NewStart+hunk.NewLines; line++ {
			lines[line] = struct{}{}
		}
	}

	return lines, nil
}

// open opens the repository, translating failure into ErrUnavailable.
func (e *Extractor) open() (*git2go.Repository, error) {
	repo, err := git2go.OpenRepository(e.repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.repoPath, err)
	}

	return repo, nil
}

// diffRevisions diffs base..head, optionally restricted to one pathspec.
// Zero context lines keeps hunk new-ranges aligned with changed lines only.
func (e *Extractor) diffRevisions(repo *git2go.Repository, base, head, pathspec string) (*git2go.Diff, error) {
	baseTree, err := resolveTree(repo, base)
	if err != nil {
		return nil, err
	}
	defer baseTree.Free()

	headTree, err := resolveTree(repo, head)
	if err != nil {
		return nil, err
	}
	defer headTree.Free()

	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: diff options: %v", ErrUnavailable, err)
	}

	opts.ContextLines = 0

	if pathspec != "" {
		opts.Pathspec = []string{pathspec}
	}

	diff, err := repo.DiffTreeToTree(baseTree, headTree, &opts)
	if err != nil {
		return nil, fmt.Errorf("%w: diff %s..%s: %v", ErrUnavailable, base, head, err)
	}

	return diff, nil
}

// resolveTree resolves a revspec to its tree.
func resolveTree(repo *git2go.Repository, revspec string) (*git2go.Tree, error) {
	obj, err := repo.RevparseSingle(revspec)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrUnavailable, revspec, err)
	}
	defer obj.Free()

	peeled, err := obj.Peel(git2go.ObjectTree)
	if err != nil {
		return nil, fmt.Errorf("%w: peel %s: %v", ErrUnavailable, revspec, err)
	}

	tree, err := peeled.AsTree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree %s: %v", ErrUnavailable, revspec, err)
	}

	return tree, nil
}

// statusEntryPath extracts the workdir-side path of a status entry.
func statusEntryPath(entry git2go.StatusEntry) string {
	if entry.IndexToWorkdir.NewFile.Path != "" {
		return entry.IndexToWorkdir.NewFile.Path
	}

	if entry.HeadToIndex.NewFile.Path != "" {
		return entry.HeadToIndex.NewFile.Path
	}

	return ""
}

// sourceLanguages are the languages selection understands.
var sourceLanguages = map[string]bool{
	"Go":     true,
	"Python": true,
}

// IsSourceFile reports whether the path names a source file in one of the
// supported languages. Detection goes through enry by filename, with a
// plain extension fallback for names enry cannot classify without content.
func IsSourceFile(path string) bool {
	if lang := enry.GetLanguage(filepath.Base(path), nil); sourceLanguages[lang] {
		return true
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".go", ".py":
		return true
	default:
		return false
	}
}
