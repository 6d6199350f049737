// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/task"
)

// writeFile creates path (and parents) under root with the given body.
func writeFile(t *testing.T, root, path, body string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
}

func newResolver(t *testing.T, root string, opts Options) *Resolver {
	t.Helper()
	opts.Root = root
	r, err := NewResolver(opts, nil)
	require.NoError(t, err)
	return r
}

func TestPathMappingWinsOverFrontmatter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "work/notes.md", "---\nproject: FromFrontmatter\n---\nbody")

	r := newResolver(t, root, Options{
		PathMappings: []PathMapping{{Pattern: "work/*", Project: "Work"}},
	})

	data := r.Get(context.Background(), "work/notes.md")
	require.NotNil(t, data.TgProject)
	assert.Equal(t, task.TgProjectTypePath, data.TgProject.Type)
	assert.Equal(t, "Work", data.TgProject.Name)
	assert.True(t, data.TgProject.Readonly)
}

func TestFrontmatterBeatsDirectoryConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "area/project.md", "---\nproject: FromConfig\n---")
	writeFile(t, root, "area/note.md", "---\nproject: FromFrontmatter\n---")

	r := newResolver(t, root, Options{ConfigFileName: "project.md"})

	data := r.Get(context.Background(), "area/note.md")
	require.NotNil(t, data.TgProject)
	assert.Equal(t, task.TgProjectTypeMetadata, data.TgProject.Type)
	assert.Equal(t, "FromFrontmatter", data.TgProject.Name)
}

func TestDirectoryConfigResolution(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "area/project.md", "---\nproject: AreaProject\n---")
	writeFile(t, root, "area/sub/note.md", "no frontmatter")

	t.Run("non-recursive misses ancestor config", func(t *testing.T) {
		r := newResolver(t, root, Options{ConfigFileName: "project.md"})
		data := r.Get(context.Background(), "area/sub/note.md")
		assert.Nil(t, data.TgProject)
	})

	t.Run("recursive walks up", func(t *testing.T) {
		r := newResolver(t, root, Options{ConfigFileName: "project.md", SearchRecursively: true})
		data := r.Get(context.Background(), "area/sub/note.md")
		require.NotNil(t, data.TgProject)
		assert.Equal(t, task.TgProjectTypeConfig, data.TgProject.Type)
		assert.Equal(t, "AreaProject", data.TgProject.Name)
		assert.Equal(t, "area/project.md", data.ConfigSource)
	})
}

func TestDefaultNamingOnlyWhenEnabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "garden/roses.md", "body")

	t.Run("disabled", func(t *testing.T) {
		r := newResolver(t, root, Options{})
		assert.Nil(t, r.Get(context.Background(), "garden/roses.md").TgProject)
	})

	t.Run("filename", func(t *testing.T) {
		r := newResolver(t, root, Options{DefaultNaming: DefaultNaming{Enabled: true, Strategy: "filename"}})
		tg := r.Get(context.Background(), "garden/roses.md").TgProject
		require.NotNil(t, tg)
		assert.Equal(t, task.TgProjectTypeDefault, tg.Type)
		assert.Equal(t, "roses", tg.Name)
	})

	t.Run("foldername", func(t *testing.T) {
		r := newResolver(t, root, Options{DefaultNaming: DefaultNaming{Enabled: true, Strategy: "foldername"}})
		tg := r.Get(context.Background(), "garden/roses.md").TgProject
		require.NotNil(t, tg)
		assert.Equal(t, "garden", tg.Name)
	})
}

func TestDetectionMethodDeclarationOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x/note.md", "---\nproject: MetaName\ntags:\n  - project/TagName\n---")

	r := newResolver(t, root, Options{
		DetectionMethods: []parser.ProjectDetectionMethod{
			{Type: "tag", Key: "project"},
			{Type: "metadata", Key: "project"},
		},
	})

	tg := r.Get(context.Background(), "x/note.md").TgProject
	require.NotNil(t, tg)
	assert.Equal(t, "TagName", tg.Name)
}

func TestFileCacheValidity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "c/note.md", "---\nproject: One\n---")

	r := newResolver(t, root, Options{})
	first := r.Get(context.Background(), "c/note.md")
	require.NotNil(t, first.TgProject)
	assert.Equal(t, "One", first.TgProject.Name)

	// Unchanged file: second lookup comes from cache.
	second := r.Get(context.Background(), "c/note.md")
	assert.Equal(t, first.Timestamp, second.Timestamp)

	// Touch the file into the future: entry invalidated.
	abs := filepath.Join(root, "c/note.md")
	require.NoError(t, os.WriteFile(abs, []byte("---\nproject: Two\n---"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(abs, future, future))

	third := r.Get(context.Background(), "c/note.md")
	require.NotNil(t, third.TgProject)
	assert.Equal(t, "Two", third.TgProject.Name)
}

func TestDirectoryCacheInvalidation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/project.md", "---\nproject: Alpha\n---")
	writeFile(t, root, "a/one.md", "body")
	writeFile(t, root, "b/project.md", "---\nproject: Beta\n---")
	writeFile(t, root, "b/two.md", "body")

	r := newResolver(t, root, Options{ConfigFileName: "project.md"})

	one := r.Get(context.Background(), "a/one.md")
	two := r.Get(context.Background(), "b/two.md")
	require.NotNil(t, one.TgProject)
	require.NotNil(t, two.TgProject)

	// Modify a's config: only a's dependents are invalidated.
	writeFile(t, root, "a/project.md", "---\nproject: AlphaPrime\n---")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a/project.md"), future, future))
	r.HandleConfigChange("a/project.md")

	oneAfter := r.Get(context.Background(), "a/one.md")
	require.NotNil(t, oneAfter.TgProject)
	assert.Equal(t, "AlphaPrime", oneAfter.TgProject.Name)

	twoAfter := r.Get(context.Background(), "b/two.md")
	assert.Equal(t, two.Timestamp, twoAfter.Timestamp) // untouched cache entry
}

func TestCloserConfigShadowsAncestor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/project.md", "---\nproject: Ancestor\n---")
	writeFile(t, root, "a/b/note.md", "body")

	r := newResolver(t, root, Options{ConfigFileName: "project.md", SearchRecursively: true})

	data := r.Get(context.Background(), "a/b/note.md")
	require.NotNil(t, data.TgProject)
	require.Equal(t, "Ancestor", data.TgProject.Name)

	// A closer config appears. The directory entry resolved to the
	// ancestor's document, so the change must drop it even though the
	// ancestor document itself is untouched.
	writeFile(t, root, "a/b/project.md", "---\nproject: Closer\n---")
	r.HandleConfigChange("a/b/project.md")

	after := r.Get(context.Background(), "a/b/note.md")
	require.NotNil(t, after.TgProject)
	assert.Equal(t, "Closer", after.TgProject.Name)
}

func TestConfigMissIsCached(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "m/note.md", "body")

	r := newResolver(t, root, Options{ConfigFileName: "project.md"})
	assert.Nil(t, r.Get(context.Background(), "m/note.md").TgProject)

	// Config created later: the cached miss must be dropped.
	writeFile(t, root, "m/project.md", "---\nproject: Late\n---")
	r.HandleConfigChange("m/project.md")
	r.RemoveFile("m/note.md") // force file-level recompute

	data := r.Get(context.Background(), "m/note.md")
	require.NotNil(t, data.TgProject)
	assert.Equal(t, "Late", data.TgProject.Name)
}

func TestGetBatchGroupsByDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "g/project.md", "---\nproject: Grouped\n---")
	writeFile(t, root, "g/a.md", "body")
	writeFile(t, root, "g/b.md", "body")
	writeFile(t, root, "h/c.md", "body")

	r := newResolver(t, root, Options{ConfigFileName: "project.md"})
	out := r.GetBatch(context.Background(), []string{"g/a.md", "g/b.md", "h/c.md"})

	require.Len(t, out, 3)
	require.NotNil(t, out["g/a.md"].TgProject)
	assert.Equal(t, "Grouped", out["g/a.md"].TgProject.Name)
	assert.Equal(t, "Grouped", out["g/b.md"].TgProject.Name)
	assert.Nil(t, out["h/c.md"].TgProject)
}

func TestParseConfigDocument(t *testing.T) {
	t.Run("frontmatter shape", func(t *testing.T) {
		data := ParseConfigDocument("---\nproject: X\narea: garden\n---\nprose below")
		require.NotNil(t, data)
		assert.Equal(t, "X", data["project"])
		assert.Equal(t, "garden", data["area"])
	})

	t.Run("key value body", func(t *testing.T) {
		data := ParseConfigDocument("project: Y\n\nsome prose\npriority: high\n")
		require.NotNil(t, data)
		assert.Equal(t, "Y", data["project"])
		assert.Equal(t, "high", data["priority"])
	})

	t.Run("empty document", func(t *testing.T) {
		assert.Nil(t, ParseConfigDocument("nothing relevant here"))
	})
}

func TestApplyMappings(t *testing.T) {
	meta := map[string]any{
		"deadline": "2024-09-01",
		"urgency":  "high",
		"keep":     "as-is",
	}

	out := ApplyMappings(meta, []MetadataMapping{
		{SourceKey: "deadline", TargetKey: "dueDate"},
		{SourceKey: "urgency", TargetKey: "priority"},
		{SourceKey: "absent", TargetKey: "whatever"},
	})

	assert.Equal(t,
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		out["dueDate"])
	assert.Equal(t, parser.PriorityHigh, out["priority"])
	assert.Equal(t, "as-is", out["keep"])
	assert.NotContains(t, out, "deadline")
	assert.NotContains(t, out, "urgency")

	// Original map untouched.
	assert.Equal(t, "2024-09-01", meta["deadline"])
}
