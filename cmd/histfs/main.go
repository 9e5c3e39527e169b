// Copyright 2026 The Histfs Authors
// SPDX-License-Identifier: Apache-2.0

// histfs mounts the object graph of a git repository as a read-only
// FUSE filesystem. The mount root contains one directory per commit,
// addressed by full commit hash; looking one up opens that commit's
// file tree for ordinary browsing:
//
//	histfs --repository /src/project/.git --mountpoint /mnt/project
//	cat /mnt/project/<commit-hash>/README.md
//
// The root lists nothing on purpose (a repository's history can be
// unbounded), so commits are reached by exact hash only.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/pflag"

	"github.com/histfs/histfs/lib/config"
	"github.com/histfs/histfs/lib/gitfuse"
	"github.com/histfs/histfs/lib/gitobject"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		repositoryPath string
		mountpoint     string
		configPath     string
		uid            uint32
		gid            uint32
		allowOther     bool
		debug          bool
		cacheEntries   int
		logLevel       string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("histfs", pflag.ContinueOnError)
	flagSet.StringVar(&repositoryPath, "repository", "", "path of the git repository to expose")
	flagSet.StringVar(&mountpoint, "mountpoint", "", "directory to mount the filesystem on")
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (or HISTFS_CONFIG)")
	flagSet.Uint32Var(&uid, "uid", 0, "user ID reported as file owner (default: current user)")
	flagSet.Uint32Var(&gid, "gid", 0, "group ID reported as file owner (default: current group)")
	flagSet.BoolVar(&allowOther, "allow-other", false, "permit other users to access the mount")
	flagSet.BoolVar(&debug, "debug", false, "enable FUSE request tracing")
	flagSet.IntVar(&cacheEntries, "blob-cache-entries", 0, "blob content cache size (0 = default)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("histfs %s\n", version)
		return nil
	}

	// Start from the config file (if any), then let flags override.
	cfg := &config.Config{}
	if configPath == "" {
		configPath = os.Getenv("HISTFS_CONFIG")
	}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if repositoryPath != "" {
		cfg.Repository = repositoryPath
	}
	if mountpoint != "" {
		cfg.Mountpoint = mountpoint
	}
	if flagSet.Changed("uid") {
		cfg.Owner.UID = &uid
	}
	if flagSet.Changed("gid") {
		cfg.Owner.GID = &gid
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = allowOther
	}
	if flagSet.Changed("blob-cache-entries") {
		cfg.BlobCacheEntries = cacheEntries
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if cfg.Repository == "" {
		return fmt.Errorf("--repository is required")
	}
	if cfg.Mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	repo, err := gitobject.Open(cfg.Repository, cfg.BlobCacheEntries)
	if err != nil {
		return err
	}

	owner := fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	if cfg.Owner.UID != nil {
		owner.Uid = *cfg.Owner.UID
	}
	if cfg.Owner.GID != nil {
		owner.Gid = *cfg.Owner.GID
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := gitfuse.Mount(gitfuse.Options{
		Mountpoint: cfg.Mountpoint,
		Repository: repo,
		Owner:      &owner,
		AllowOther: cfg.AllowOther,
		Debug:      debug,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("unmounting", "mountpoint", cfg.Mountpoint)
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", cfg.Mountpoint, err)
	}
	server.Wait()
	return nil
}
