// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

package gitobject

import (
	"fmt"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
)

// RootInode is the inode number of the synthetic filesystem root. The
// root is not a git object and never appears in the registry; it only
// exists so that commit hashes have a directory to be looked up in.
// The value matches FUSE_ROOT_ID.
const RootInode uint64 = 1

// inodeAllocator issues inode numbers on demand. Numbers are strictly
// increasing and never reused, so a 64-bit counter cannot collide
// within the lifetime of a mount.
type inodeAllocator struct {
	next uint64
}

func newInodeAllocator() *inodeAllocator {
	return &inodeAllocator{next: RootInode + 1}
}

func (a *inodeAllocator) allocate() uint64 {
	ino := a.next
	a.next++
	return ino
}

// inodeRegistry is the bidirectional mapping between inode numbers and
// object hashes. It is the piece of state that makes a content-addressed
// object store behave like an inode-addressed filesystem: the first time
// a hash is resolved through any filesystem operation it is assigned an
// inode, and that assignment holds for the lifetime of the mount. The
// registry never evicts.
//
// go-fuse dispatches kernel requests from multiple goroutines, so
// insert-or-lookup is a single critical section. Both maps are only
// ever updated together under the mutex, which keeps the mapping
// injective in both directions.
type inodeRegistry struct {
	mu        sync.Mutex
	allocator *inodeAllocator
	byHash    map[plumbing.Hash]uint64
	byInode   map[uint64]plumbing.Hash

	// parents records, per tree inode, the hash the tree was most
	// recently reached through. Needed because the filesystem exposes
	// ".." while the object store encodes no parent links. When the
	// same subtree is reachable from several commits, the last
	// traversal wins; all candidates are live objects, so any of them
	// is a valid parent identity.
	parents map[uint64]plumbing.Hash
}

func newInodeRegistry() *inodeRegistry {
	return &inodeRegistry{
		allocator: newInodeAllocator(),
		byHash:    make(map[plumbing.Hash]uint64),
		byInode:   make(map[uint64]plumbing.Hash),
		parents:   make(map[uint64]plumbing.Hash),
	}
}

// resolveOrAssign returns the inode registered for hash, assigning a
// fresh one on first sight. Idempotent: repeated calls with the same
// hash return the same inode.
func (r *inodeRegistry) resolveOrAssign(hash plumbing.Hash) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveOrAssignLocked(hash)
}

func (r *inodeRegistry) resolveOrAssignLocked(hash plumbing.Hash) uint64 {
	if ino, ok := r.byHash[hash]; ok {
		return ino
	}
	ino := r.allocator.allocate()
	if existing, ok := r.byInode[ino]; ok {
		// The allocator never reuses values; a collision here means
		// the registry state is corrupt and live kernel handles can
		// no longer be trusted.
		panic(fmt.Sprintf("gitobject: inode %d already registered for %s", ino, existing))
	}
	r.byHash[hash] = ino
	r.byInode[ino] = hash
	return ino
}

// hashFor returns the hash registered for the inode, or false if the
// inode was never assigned.
func (r *inodeRegistry) hashFor(ino uint64) (plumbing.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.byInode[ino]
	return hash, ok
}

// assignTree registers a tree hash together with the parent hash it
// was reached through, returning the tree's inode and the parent's
// inode. One critical section so that a concurrent first-time
// resolution of the same tree cannot interleave with the parent
// recording.
func (r *inodeRegistry) assignTree(hash, parent plumbing.Hash) (ino, parentIno uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ino = r.resolveOrAssignLocked(hash)
	parentIno = r.resolveOrAssignLocked(parent)
	r.parents[ino] = parent
	return ino, parentIno
}

// parentOf returns the recorded parent hash and inode of a tree inode.
func (r *inodeRegistry) parentOf(ino uint64) (plumbing.Hash, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.parents[ino]
	if !ok {
		return plumbing.ZeroHash, 0, false
	}
	parentIno, ok := r.byHash[parent]
	if !ok {
		panic(fmt.Sprintf("gitobject: parent %s of inode %d is not registered", parent, ino))
	}
	return parent, parentIno, true
}
