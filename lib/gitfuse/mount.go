// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

package gitfuse

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/histfs/histfs/lib/gitobject"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Repository provides object resolution and inode assignment.
	Repository *gitobject.Repository

	// Owner is the user/group identity reported for every object.
	// If nil, the current process identity is used.
	Owner *fuse.Owner

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug enables go-fuse request tracing on stderr.
	Debug bool

	// Logger receives diagnostic messages. If nil, an error-level
	// text logger on stderr is used.
	Logger *slog.Logger
}

// Mount mounts the git object filesystem at the configured mountpoint
// and returns once the kernel has completed the mount. The caller must
// call Unmount on the returned server when done, then Wait for the
// serve loop to drain.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	owner := fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	if options.Owner != nil {
		owner = *options.Owner
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	fsys := NewFileSystem(options.Repository, owner, options.Logger)
	server, err := fuse.NewServer(fsys, options.Mountpoint, &fuse.MountOptions{
		FsName:     options.Repository.Path(),
		Name:       "histfs",
		AllowOther: options.AllowOther,
		Debug:      options.Debug,
		Options:    []string{"ro"},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	go server.Serve()
	if err := server.WaitMount(); err != nil {
		server.Unmount()
		return nil, fmt.Errorf("waiting for mount at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("git object filesystem mounted",
		"mountpoint", options.Mountpoint,
		"repository", options.Repository.Path(),
	)
	return server, nil
}
