// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitfuse serves a git object graph over the raw FUSE
// protocol. The mount root is a synthetic directory that contains one
// entry per commit hash: looking up a full hash yields that commit's
// root tree, and from there ordinary directory walking applies. The
// root itself is deliberately not listable (enumerating every commit
// in a repository's history would be unbounded), so readdir on it
// fails while lookup by exact hash succeeds.
//
// The handlers are stateless; all state lives in the gitobject
// repository accessor they share. Requests that cannot be satisfied
// collapse into the three statuses the protocol offers: ENOENT for
// anything unresolvable, EISDIR for reads of directories, EINVAL for
// out-of-range arguments.
package gitfuse

import (
	"errors"
	"log/slog"
	"math"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/histfs/histfs/lib/gitobject"
)

// FileSystem implements the read-only subset of fuse.RawFileSystem.
// Everything not overridden inherits go-fuse's default raw filesystem,
// which refuses with ENOSYS.
type FileSystem struct {
	fuse.RawFileSystem

	repo   *gitobject.Repository
	attrs  attrBuilder
	logger *slog.Logger
}

// NewFileSystem creates the protocol handler over the given repository
// accessor. The owner identity is reported on every object.
func NewFileSystem(repo *gitobject.Repository, owner fuse.Owner, logger *slog.Logger) *FileSystem {
	return &FileSystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		repo:          repo,
		attrs:         attrBuilder{owner: owner},
		logger:        logger,
	}
}

func (fs *FileSystem) String() string {
	return "histfs"
}

// errno maps accessor failures onto the protocol vocabulary. Plain
// not-found (unknown hash, unregistered inode, kind mismatch) stays
// quiet; backend failures get an operator-visible log line before
// being reported as the same ENOENT, since the kernel protocol cannot
// distinguish a corrupt repository from a missing entry.
func (fs *FileSystem) errno(op string, ino uint64, err error) fuse.Status {
	if !errors.Is(err, gitobject.ErrNotFound) && !errors.Is(err, gitobject.ErrInvalidHash) {
		fs.logger.Error("backend resolution failed", "op", op, "inode", ino, "error", err)
	}
	return fuse.ENOENT
}

func (fs *FileSystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	if header.NodeId == gitobject.RootInode {
		return fs.lookupCommit(name, out)
	}

	tree, err := fs.repo.TreeByInode(header.NodeId)
	if err != nil {
		return fs.errno("lookup", header.NodeId, err)
	}
	entry, ok := tree.Entry(name)
	if !ok {
		return fuse.ENOENT
	}

	switch entry.Kind {
	case gitobject.KindTree:
		child, err := fs.repo.TreeByHash(entry.Hash, tree.Hash)
		if err != nil {
			return fs.errno("lookup", header.NodeId, err)
		}
		fs.attrs.tree(child, &out.Attr)
	case gitobject.KindBlob:
		child, err := fs.repo.BlobByHash(entry.Hash)
		if err != nil {
			return fs.errno("lookup", header.NodeId, err)
		}
		fs.attrs.blob(child, &out.Attr)
	default:
		fs.logger.Error("unsupported object kind in lookup",
			"name", name, "hash", entry.Hash.String())
		return fuse.ENOENT
	}
	finishEntry(out)
	return fuse.OK
}

// lookupCommit handles lookup under the synthetic root: the name must
// be a full object hash naming a commit, and the reply is the commit's
// root tree.
func (fs *FileSystem) lookupCommit(name string, out *fuse.EntryOut) fuse.Status {
	hash, err := gitobject.ParseHash(name)
	if err != nil {
		return fuse.ENOENT
	}
	tree, err := fs.repo.CommitRootTree(hash)
	if err != nil {
		return fs.errno("lookup", gitobject.RootInode, err)
	}
	fs.attrs.tree(tree, &out.Attr)
	finishEntry(out)
	return fuse.OK
}

func (fs *FileSystem) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	if input.NodeId == gitobject.RootInode {
		fs.attrs.root(&out.Attr)
		out.SetTimeout(attrTTL)
		return fuse.OK
	}
	if tree, err := fs.repo.TreeByInode(input.NodeId); err == nil {
		fs.attrs.tree(tree, &out.Attr)
		out.SetTimeout(attrTTL)
		return fuse.OK
	}
	blob, err := fs.repo.BlobByInode(input.NodeId)
	if err != nil {
		return fs.errno("getattr", input.NodeId, err)
	}
	fs.attrs.blob(blob, &out.Attr)
	out.SetTimeout(attrTTL)
	return fuse.OK
}

func (fs *FileSystem) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return fuse.EROFS
	}
	if input.NodeId == gitobject.RootInode {
		return fuse.EISDIR
	}
	if _, err := fs.repo.BlobByInode(input.NodeId); err != nil {
		if _, treeErr := fs.repo.TreeByInode(input.NodeId); treeErr == nil {
			return fuse.EISDIR
		}
		return fs.errno("open", input.NodeId, err)
	}
	// Object content is immutable; the kernel page cache never goes
	// stale.
	out.OpenFlags |= fuse.FOPEN_KEEP_CACHE
	return fuse.OK
}

func (fs *FileSystem) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.NodeId == gitobject.RootInode {
		// Opening succeeds so that the mountpoint behaves like a
		// directory; the subsequent readdir is what fails.
		return fuse.OK
	}
	if _, err := fs.repo.TreeByInode(input.NodeId); err != nil {
		if _, blobErr := fs.repo.BlobByInode(input.NodeId); blobErr == nil {
			return fuse.ENOTDIR
		}
		return fs.errno("opendir", input.NodeId, err)
	}
	return fuse.OK
}

func (fs *FileSystem) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	if input.NodeId == gitobject.RootInode {
		return nil, fuse.EISDIR
	}
	blob, err := fs.repo.BlobByInode(input.NodeId)
	if err != nil {
		if _, treeErr := fs.repo.TreeByInode(input.NodeId); treeErr == nil {
			return nil, fuse.EISDIR
		}
		return nil, fs.errno("read", input.NodeId, err)
	}
	if input.Offset > uint64(math.MaxInt64) {
		return nil, fuse.EINVAL
	}

	content, err := fs.repo.BlobContent(blob.Hash)
	if err != nil {
		return nil, fs.errno("read", input.NodeId, err)
	}

	// Reads past the end of the file return an empty slice, matching
	// standard read semantics.
	offset := int64(input.Offset)
	if offset >= int64(len(content)) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := offset + int64(len(buf))
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return fuse.ReadResultData(content[offset:end]), fuse.OK
}

// dirEntry pairs a wire directory entry with an optional attribute
// filler used by ReadDirPlus. The filler is nil for "." and "..",
// whose attributes the kernel tracks itself.
type dirEntry struct {
	fuse.DirEntry
	fill func(out *fuse.EntryOut)
}

// listTree produces the remainder of a tree listing starting after
// the resume cursor. Positions are fixed by the captured snapshot:
// "." at 1, ".." at 2, entries at 3 onward; entries at positions at
// or before the cursor are skipped. A skipped (unsupported or
// unresolvable) entry still consumes its position so that cursors
// stay aligned across calls.
func (fs *FileSystem) listTree(ino, offset uint64) ([]dirEntry, fuse.Status) {
	if ino == gitobject.RootInode {
		// The root supports lookup by exact commit hash only.
		return nil, fuse.ENOENT
	}
	tree, err := fs.repo.TreeByInode(ino)
	if err != nil {
		return nil, fs.errno("readdir", ino, err)
	}

	var entries []dirEntry
	if offset < 1 {
		entries = append(entries, dirEntry{DirEntry: fuse.DirEntry{
			Mode: fuse.S_IFDIR, Name: ".", Ino: tree.Ino, Off: 1,
		}})
	}
	if offset < 2 {
		entries = append(entries, dirEntry{DirEntry: fuse.DirEntry{
			Mode: fuse.S_IFDIR, Name: "..", Ino: tree.ParentIno, Off: 2,
		}})
	}

	for i, entry := range tree.Entries {
		position := uint64(i) + 3
		if position <= offset {
			continue
		}
		switch entry.Kind {
		case gitobject.KindTree:
			child, err := fs.repo.TreeByHash(entry.Hash, tree.Hash)
			if err != nil {
				fs.logger.Error("skipping unresolvable tree entry",
					"name", entry.Name, "hash", entry.Hash.String(), "error", err)
				continue
			}
			entries = append(entries, dirEntry{
				DirEntry: fuse.DirEntry{Mode: fuse.S_IFDIR, Name: entry.Name, Ino: child.Ino, Off: position},
				fill: func(out *fuse.EntryOut) {
					fs.attrs.tree(child, &out.Attr)
					finishEntry(out)
				},
			})
		case gitobject.KindBlob:
			child, err := fs.repo.BlobByHash(entry.Hash)
			if err != nil {
				fs.logger.Error("skipping unresolvable blob entry",
					"name", entry.Name, "hash", entry.Hash.String(), "error", err)
				continue
			}
			entries = append(entries, dirEntry{
				DirEntry: fuse.DirEntry{Mode: fuse.S_IFREG, Name: entry.Name, Ino: child.Ino, Off: position},
				fill: func(out *fuse.EntryOut) {
					fs.attrs.blob(child, &out.Attr)
					finishEntry(out)
				},
			})
		default:
			// Symlinks, submodules, and corrupt modes are omitted
			// rather than failing the whole listing.
			fs.logger.Error("skipping unsupported tree entry",
				"name", entry.Name, "hash", entry.Hash.String())
		}
	}
	return entries, fuse.OK
}

func (fs *FileSystem) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, status := fs.listTree(input.NodeId, input.Offset)
	if status != fuse.OK {
		return status
	}
	for _, entry := range entries {
		if !out.AddDirEntry(entry.DirEntry) {
			break
		}
	}
	return fuse.OK
}

func (fs *FileSystem) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, status := fs.listTree(input.NodeId, input.Offset)
	if status != fuse.OK {
		return status
	}
	for _, entry := range entries {
		entryOut := out.AddDirLookupEntry(entry.DirEntry)
		if entryOut == nil {
			break
		}
		if entry.fill != nil {
			entry.fill(entryOut)
		}
	}
	return fuse.OK
}

func (fs *FileSystem) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.NameLen = 255
	out.Bsize = blockSize
	return fuse.OK
}
