// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitobject exposes the immutable object graph of a git
// repository (commits, trees, blobs) behind an inode-addressed
// surface. Objects are identified by content hash in the repository;
// the filesystem layer needs stable small-integer handles. This
// package owns that translation: it resolves objects through go-git
// with an expected-kind filter and assigns each observed hash an inode
// through a never-evicting bidirectional registry.
//
// Symmetric queries exist for each object kind: by-hash (used when
// walking a directory listing, where the hash is known but the inode
// may not exist yet) and by-inode (used when the kernel hands back a
// node handle). By-inode queries fail with ErrNotFound when the inode
// is unregistered or the object's kind does not match the query; the
// kind filter is what keeps type safety at the filesystem boundary.
package gitobject

import (
	"errors"
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBlobCacheEntries is the number of blob contents kept in the
// in-memory cache when Open is called with a zero cache size.
const DefaultBlobCacheEntries = 256

// ErrNotFound reports that a hash or inode does not resolve to an
// object of the requested kind. Unregistered inodes, missing objects,
// and kind mismatches all collapse into this error: the filesystem
// protocol has no richer vocabulary than "no such entry".
var ErrNotFound = errors.New("object not found")

// ErrInvalidHash reports that a string is not a valid object hash.
var ErrInvalidHash = errors.New("invalid object hash")

// Kind identifies which kind of object a tree entry points at.
type Kind int

const (
	// KindUnsupported covers tree entries histfs does not surface:
	// symlinks, submodules, and anything else that is neither a
	// directory nor file content.
	KindUnsupported Kind = iota
	KindBlob
	KindTree
)

// TreeEntry is one named entry of a tree snapshot.
type TreeEntry struct {
	Name string
	Hash plumbing.Hash
	Kind Kind
}

// Tree is a resolved tree object. Entries are captured once at
// resolution time and never reordered afterwards: directory listing
// offsets are positions into this captured ordering. Parent is the
// hash the tree was reached through (the commit for a root tree, the
// containing tree otherwise), which is what ".." resolves to.
type Tree struct {
	Hash      plumbing.Hash
	Ino       uint64
	Parent    plumbing.Hash
	ParentIno uint64
	Entries   []TreeEntry
}

// Entry returns the named entry of the captured snapshot.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, entry := range t.Entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return TreeEntry{}, false
}

// Blob is a resolved blob object. Content is fetched separately via
// BlobContent so that attribute queries do not read file data.
type Blob struct {
	Hash plumbing.Hash
	Ino  uint64
	Size int64
}

// Commit is a resolved commit object. Commits are not exposed as
// filesystem content; they exist to be addressable by hash at the
// root and to scope tree resolution.
type Commit struct {
	Hash     plumbing.Hash
	Ino      uint64
	TreeHash plumbing.Hash
}

// Repository composes the object resolver and the inode registry into
// the single surface the filesystem layer talks to. The registry and
// the underlying repository handle are exclusively owned by this
// instance for the life of the mount.
type Repository struct {
	path      string
	repo      *git.Repository
	inodes    *inodeRegistry
	blobCache *lru.Cache[plumbing.Hash, []byte]
}

// Open opens the git repository at path. The path must point directly
// at a repository (a .git directory or a bare repository); there is no
// upward search. cacheEntries bounds the blob content cache and
// defaults to DefaultBlobCacheEntries when zero. Blob content is
// immutable, so cached entries never go stale; eviction only bounds
// memory.
func Open(path string, cacheEntries int) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	if cacheEntries == 0 {
		cacheEntries = DefaultBlobCacheEntries
	}
	blobCache, err := lru.New[plumbing.Hash, []byte](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("creating blob cache: %w", err)
	}
	return &Repository{
		path:      path,
		repo:      repo,
		inodes:    newInodeRegistry(),
		blobCache: blobCache,
	}, nil
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// ParseHash parses the textual form of an object hash.
func ParseHash(s string) (plumbing.Hash, error) {
	if !plumbing.IsHash(s) {
		return plumbing.ZeroHash, fmt.Errorf("%q: %w", s, ErrInvalidHash)
	}
	return plumbing.NewHash(s), nil
}

// CommitByHash resolves a commit object and assigns its inode.
func (r *Repository) CommitByHash(hash plumbing.Hash) (*Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, resolveError("commit", hash, err)
	}
	return &Commit{
		Hash:     hash,
		Ino:      r.inodes.resolveOrAssign(hash),
		TreeHash: commit.TreeHash,
	}, nil
}

// CommitRootTree resolves the commit named by hash and returns its
// root tree, with the commit itself as the tree's parent. This is the
// entry point for walking a commit's object space from the filesystem
// root.
func (r *Repository) CommitRootTree(hash plumbing.Hash) (*Tree, error) {
	commit, err := r.CommitByHash(hash)
	if err != nil {
		return nil, err
	}
	return r.TreeByHash(commit.TreeHash, commit.Hash)
}

// TreeByHash resolves a tree object, assigns its inode, and captures
// its entry snapshot. parent is the hash the tree is being reached
// through and becomes the tree's ".." identity.
func (r *Repository) TreeByHash(hash, parent plumbing.Hash) (*Tree, error) {
	tree, err := r.repo.TreeObject(hash)
	if err != nil {
		return nil, resolveError("tree", hash, err)
	}
	ino, parentIno := r.inodes.assignTree(hash, parent)
	return &Tree{
		Hash:      hash,
		Ino:       ino,
		Parent:    parent,
		ParentIno: parentIno,
		Entries:   snapshotEntries(tree),
	}, nil
}

// TreeByInode resolves a tree through the registry. Fails with
// ErrNotFound if the inode is unregistered or maps to an object of a
// different kind.
func (r *Repository) TreeByInode(ino uint64) (*Tree, error) {
	hash, ok := r.inodes.hashFor(ino)
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrNotFound)
	}
	tree, err := r.repo.TreeObject(hash)
	if err != nil {
		return nil, resolveError("tree", hash, err)
	}
	parent, parentIno, ok := r.inodes.parentOf(ino)
	if !ok {
		// Trees only enter the registry through TreeByHash, which
		// always records a parent. A registered tree inode without
		// one means the hash actually belongs to a non-tree object
		// that happens to parse as a tree; report it as missing.
		return nil, fmt.Errorf("tree inode %d has no parent record: %w", ino, ErrNotFound)
	}
	return &Tree{
		Hash:      hash,
		Ino:       ino,
		Parent:    parent,
		ParentIno: parentIno,
		Entries:   snapshotEntries(tree),
	}, nil
}

// BlobByHash resolves a blob object and assigns its inode.
func (r *Repository) BlobByHash(hash plumbing.Hash) (*Blob, error) {
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, resolveError("blob", hash, err)
	}
	return &Blob{
		Hash: hash,
		Ino:  r.inodes.resolveOrAssign(hash),
		Size: blob.Size,
	}, nil
}

// BlobByInode resolves a blob through the registry. Fails with
// ErrNotFound if the inode is unregistered or maps to an object of a
// different kind.
func (r *Repository) BlobByInode(ino uint64) (*Blob, error) {
	hash, ok := r.inodes.hashFor(ino)
	if !ok {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrNotFound)
	}
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, resolveError("blob", hash, err)
	}
	return &Blob{Hash: hash, Ino: ino, Size: blob.Size}, nil
}

// BlobContent returns the full content of a blob, reading through the
// bounded in-memory cache. Content is keyed by hash, so a cached entry
// is valid forever.
func (r *Repository) BlobContent(hash plumbing.Hash) ([]byte, error) {
	if content, ok := r.blobCache.Get(hash); ok {
		return content, nil
	}
	blob, err := r.repo.BlobObject(hash)
	if err != nil {
		return nil, resolveError("blob", hash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	r.blobCache.Add(hash, content)
	return content, nil
}

func snapshotEntries(tree *object.Tree) []TreeEntry {
	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		entries = append(entries, TreeEntry{
			Name: entry.Name,
			Hash: entry.Hash,
			Kind: kindOf(entry.Mode),
		})
	}
	return entries
}

func kindOf(mode filemode.FileMode) Kind {
	switch mode {
	case filemode.Dir:
		return KindTree
	case filemode.Regular, filemode.Executable, filemode.Deprecated:
		return KindBlob
	default:
		return KindUnsupported
	}
}

// resolveError normalizes backend failures. Missing objects and kind
// mismatches become ErrNotFound; anything else (corrupt storage, I/O
// failure) is passed through for the caller to log before reporting
// the plain not-found the kernel protocol allows.
func resolveError(kind string, hash plumbing.Hash, err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return fmt.Errorf("%s %s: %w", kind, hash, ErrNotFound)
	}
	return fmt.Errorf("resolving %s %s: %w", kind, hash, err)
}
