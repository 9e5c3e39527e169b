// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

package gitfuse

import (
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/histfs/histfs/lib/gitobject"
)

// attrTTL is attached to every entry and attribute reply. Object
// identities are stable, so the kernel could cache longer, but a
// bounded re-validation interval guards against an inode ever being
// served with stale identity.
const attrTTL = time.Second

const (
	rootMode = syscall.S_IFDIR | 0o755
	treeMode = syscall.S_IFDIR | 0o555
	blobMode = syscall.S_IFREG | 0o444
)

// attrBuilder synthesizes kernel attributes for resolved objects.
// The owning identity is fixed at mount time. All timestamps stay at
// the Unix epoch: content-addressed objects carry no natural
// timestamp, and a constant avoids fabricating history. Git's
// executable bit is deliberately not reflected; every blob reports
// the same read-only file mode.
type attrBuilder struct {
	owner fuse.Owner
}

func (b attrBuilder) root(out *fuse.Attr) {
	out.Ino = gitobject.RootInode
	out.Mode = rootMode
	out.Nlink = 2
	out.Owner = b.owner
	out.Blksize = blockSize
}

func (b attrBuilder) tree(tree *gitobject.Tree, out *fuse.Attr) {
	out.Ino = tree.Ino
	out.Mode = treeMode
	// Content size is not meaningful for directories.
	out.Size = 0
	out.Nlink = 2
	out.Owner = b.owner
	out.Blksize = blockSize
}

func (b attrBuilder) blob(blob *gitobject.Blob, out *fuse.Attr) {
	out.Ino = blob.Ino
	out.Mode = blobMode
	out.Size = uint64(blob.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Nlink = 1
	out.Owner = b.owner
	out.Blksize = blockSize
}

const blockSize = 4096

// finishEntry completes an entry reply once the attributes are in
// place: the node handle the kernel will use is the inode itself.
func finishEntry(out *fuse.EntryOut) {
	out.NodeId = out.Attr.Ino
	out.SetEntryTimeout(attrTTL)
	out.SetAttrTimeout(attrTTL)
}
