// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/filter"
	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/orchestrator"
	"github.com/taskweave/taskweave/internal/project"
	"github.com/taskweave/taskweave/internal/snapshot"
	"github.com/taskweave/taskweave/pkg/logging"
)

// runScan walks the vault once, parses every included document
// through the worker pool, and prints a summary. With --save the
// resulting index is persisted for the next serve run.
func runScan(cmd *cobra.Command, args []string) error {
	snap, err := loadSettings()
	if err != nil {
		return err
	}

	appLog := logging.New(logging.Config{
		Level:   logLevel,
		LogDir:  logDir,
		Service: "taskweave",
		JSON:    jsonLogs,
		Quiet:   true,
	})
	defer appLog.Close()
	logger := appLog.Logger

	resolver, err := project.NewResolver(snap.ResolverOptions(), logger)
	if err != nil {
		return err
	}
	filters := filter.NewManager(snap.Filter.Mode, snap.Filter.Rules, logger)
	idx := index.NewIndexer(logger)

	ctx := context.Background()
	orch := orchestrator.New(snap, resolver, logger, nil)
	orch.Start(ctx)
	defer orch.Close()

	files, err := collectDocuments(snap.Vault.Root, filters)
	if err != nil {
		return err
	}

	start := time.Now()
	attachProjects(ctx, resolver, files)
	taskResults, parseErrs := orch.BatchParse(ctx, files)

	mtimes := make(map[string]int64, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(snap.Vault.Root, f.Path))
		if err != nil {
			continue
		}
		mtimes[f.Path] = info.ModTime().UnixMilli()
	}

	total := 0
	for path, tasks := range taskResults {
		idx.UpdateIndexWithTasks(path, tasks, mtimes[path])
		total += len(tasks)
	}

	fmt.Printf("Scanned %d documents in %s\n", len(files), time.Since(start).Round(time.Millisecond))
	fmt.Printf("Indexed %d tasks\n", total)
	if len(parseErrs) > 0 {
		fmt.Printf("%d documents had parse errors:\n", len(parseErrs))
		paths := make([]string, 0, len(parseErrs))
		for p := range parseErrs {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Printf("  %s: %v\n", p, parseErrs[p])
		}
	}

	if scanSave {
		store, err := snapshot.Open(snapshot.DefaultConfig(snapshotDir(snap)), logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(ctx, snap.Vault.ID, idx.GetIndexSnapshot()); err != nil {
			return err
		}
		fmt.Println("Snapshot saved")
	}
	return nil
}

// attachProjects resolves project data for every collected document
// before the parse fan-out. GetBatch groups the paths by directory so
// each config document is loaded a single time.
func attachProjects(ctx context.Context, resolver *project.Resolver, files []orchestrator.FileContent) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	projects := resolver.GetBatch(ctx, paths)
	for i := range files {
		if pd, ok := projects[files[i].Path]; ok {
			files[i].Project = &pd
		}
	}
}

// collectDocuments walks the vault and reads every document the
// filter rules include. Paths in the result are vault-relative.
func collectDocuments(root string, filters *filter.Manager) ([]orchestrator.FileContent, error) {
	var files []orchestrator.FileContent
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", ".obsidian", ".trash", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".canvas" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filter.NormalizePath(rel)
		if !filters.Include(rel, filter.ScopeInline) && !filters.Include(rel, filter.ScopeFile) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content := string(raw)
		files = append(files, orchestrator.FileContent{
			Path:     rel,
			Content:  content,
			FileMeta: project.ParseFrontmatter(content),
		})
		return nil
	})
	return files, err
}
