// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/taskweave/taskweave/internal/filter"
	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/task"
)

var tracer = otel.Tracer("taskweave.project")

// PathMapping assigns a project name to paths matching a glob pattern.
// Path mappings are readonly and carry the highest precedence.
type PathMapping struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Project string `yaml:"project" json:"project"`
}

// DefaultNaming is the lowest-precedence strategy, applied only when
// explicitly enabled.
type DefaultNaming struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Strategy is "filename", "foldername", or "metadata".
	Strategy string `yaml:"strategy" json:"strategy"`

	// MetadataKey names the frontmatter field for the "metadata" strategy.
	MetadataKey string `yaml:"metadataKey,omitempty" json:"metadataKey,omitempty"`
}

// Options configures the Resolver.
type Options struct {
	// Root is the absolute vault root on disk.
	Root string

	// PathMappings are evaluated first, in order.
	PathMappings []PathMapping

	// MetadataKey is the frontmatter key consulted when no custom
	// detection methods are configured. Default "project".
	MetadataKey string

	// DetectionMethods replace the single MetadataKey lookup at the
	// second precedence step. Evaluated strictly in declaration order;
	// the first hit wins.
	DetectionMethods []parser.ProjectDetectionMethod

	// ConfigFileName is the directory config document name, e.g.
	// "project.md". Empty disables the directory config step.
	ConfigFileName string

	// SearchRecursively walks ancestor directories up to the root when
	// a directory has no config document of its own.
	SearchRecursively bool

	// DefaultNaming is the fourth precedence step.
	DefaultNaming DefaultNaming

	// MetadataMappings are applied to the enhanced metadata after
	// resolution (see ApplyMappings).
	MetadataMappings []MetadataMapping
}

// CachedProjectData is the per-file resolution result.
type CachedProjectData struct {
	TgProject        *task.TgProject `json:"tgProject,omitempty"`
	EnhancedMetadata map[string]any  `json:"enhancedMetadata,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	ConfigSource     string          `json:"configSource,omitempty"`
}

// dirEntry caches one directory's config document resolution. A lookup
// miss is itself cached (ConfigFile empty) until invalidated.
type dirEntry struct {
	ConfigFile      string
	ConfigData      map[string]any
	ConfigTimestamp time.Time

	// Paths tracks the files currently relying on this directory's
	// config so a config change can selectively invalidate exactly the
	// dependent files.
	Paths map[string]struct{}
}

type compiledMapping struct {
	glob    *filter.GlobMatcher
	project string
}

// Resolver determines the project classification for documents.
//
// Thread Safety: Safe for concurrent use. Cache mutation is guarded by
// a mutex; the expensive directory config parse is deduplicated with
// singleflight so concurrent batch lookups share one parse.
type Resolver struct {
	opts     Options
	mappings []compiledMapping
	logger   *slog.Logger

	mu    sync.RWMutex
	files map[string]*CachedProjectData
	dirs  map[string]*dirEntry

	sf singleflight.Group
}

// NewResolver creates a resolver rooted at opts.Root.
func NewResolver(opts Options, logger *slog.Logger) (*Resolver, error) {
	if !filepath.IsAbs(opts.Root) {
		return nil, ErrRelativeRoot
	}
	if opts.MetadataKey == "" {
		opts.MetadataKey = "project"
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		opts:   opts,
		logger: logger.With(slog.String("component", "project_resolver")),
		files:  make(map[string]*CachedProjectData),
		dirs:   make(map[string]*dirEntry),
	}
	for _, m := range opts.PathMappings {
		g, err := filter.NewGlobMatcher(m.Pattern)
		if err != nil {
			r.logger.Warn("skipping invalid path mapping",
				slog.String("pattern", m.Pattern),
				slog.String("error", err.Error()))
			continue
		}
		r.mappings = append(r.mappings, compiledMapping{glob: g, project: m.Project})
	}
	return r, nil
}

// Get returns project data for one file, from cache when valid.
//
// Description:
//
//	A cached entry is valid only if both the file's own modification
//	time and its directory config's modification time are no newer than
//	the cache timestamp. Missing or unreadable files resolve against
//	empty metadata; per-file problems never surface as errors.
func (r *Resolver) Get(ctx context.Context, path string) CachedProjectData {
	ctx, span := tracer.Start(ctx, "project.Get")
	defer span.End()
	path = filter.NormalizePath(path)
	span.SetAttributes(attribute.String("path", path))

	if entry, ok := r.validEntry(path); ok {
		fileCacheHits.Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return *entry
	}
	fileCacheMisses.Inc()

	fileMeta := r.readFrontmatter(path)
	data := r.Resolve(ctx, path, fileMeta)
	r.store(path, data)
	return data
}

// GetBatch resolves many files, grouping by directory first so the
// config lookup happens once per directory rather than once per file.
func (r *Resolver) GetBatch(ctx context.Context, paths []string) map[string]CachedProjectData {
	ctx, span := tracer.Start(ctx, "project.GetBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("paths", len(paths)))

	byDir := make(map[string][]string)
	for _, p := range paths {
		p = filter.NormalizePath(p)
		byDir[parentDir(p)] = append(byDir[parentDir(p)], p)
	}

	out := make(map[string]CachedProjectData, len(paths))
	for dir, group := range byDir {
		// Warm the directory cache once for the whole group.
		r.dirConfig(ctx, dir)
		for _, p := range group {
			out[p] = r.Get(ctx, p)
		}
	}
	return out
}

// Resolve computes project data for a path with the given metadata,
// without consulting or writing the per-file cache. Workers use this
// directly; Get wraps it with caching.
func (r *Resolver) Resolve(ctx context.Context, path string, fileMeta map[string]any) CachedProjectData {
	path = filter.NormalizePath(path)
	dir := parentDir(path)
	cfg := r.dirConfig(ctx, dir)

	data := CachedProjectData{Timestamp: time.Now()}
	if cfg != nil && cfg.ConfigFile != "" {
		data.ConfigSource = cfg.ConfigFile
	}

	data.TgProject = r.resolveTgProject(path, fileMeta, cfg)
	if data.TgProject != nil {
		resolutionsTotal.WithLabelValues(string(data.TgProject.Type)).Inc()
	} else {
		resolutionsTotal.WithLabelValues("none").Inc()
	}

	merged := make(map[string]any)
	if cfg != nil {
		for k, v := range cfg.ConfigData {
			merged[k] = v
		}
	}
	for k, v := range fileMeta {
		merged[k] = v
	}
	data.EnhancedMetadata = ApplyMappings(merged, r.opts.MetadataMappings)
	return data
}

// resolveTgProject walks the precedence chain: path mapping, metadata
// detection methods (declaration order), directory config, default
// naming. First match wins.
func (r *Resolver) resolveTgProject(path string, fileMeta map[string]any, cfg *dirEntry) *task.TgProject {
	for _, m := range r.mappings {
		if m.glob.Match(path) {
			return &task.TgProject{
				Type:     task.TgProjectTypePath,
				Name:     m.project,
				Source:   m.glob.Pattern(),
				Readonly: true,
			}
		}
	}

	if name, source := r.detectFromMetadata(fileMeta); name != "" {
		return &task.TgProject{
			Type:   task.TgProjectTypeMetadata,
			Name:   name,
			Source: source,
		}
	}

	if cfg != nil && cfg.ConfigFile != "" {
		if v, ok := cfg.ConfigData[r.opts.MetadataKey]; ok {
			if name := toString(v); name != "" {
				return &task.TgProject{
					Type:   task.TgProjectTypeConfig,
					Name:   name,
					Source: cfg.ConfigFile,
				}
			}
		}
	}

	return r.defaultProject(path, fileMeta)
}

// detectFromMetadata runs the configured detection methods in
// declaration order. Without custom methods it is a single frontmatter
// key lookup.
func (r *Resolver) detectFromMetadata(fileMeta map[string]any) (string, string) {
	if len(fileMeta) == 0 {
		return "", ""
	}

	methods := r.opts.DetectionMethods
	if len(methods) == 0 {
		methods = []parser.ProjectDetectionMethod{{Type: "metadata", Key: r.opts.MetadataKey}}
	}

	for _, m := range methods {
		switch m.Type {
		case "metadata":
			if v, ok := fileMeta[m.Key]; ok {
				if s := toString(v); s != "" {
					return s, m.Key
				}
			}
		case "tag":
			prefix := strings.TrimPrefix(m.Key, "#")
			for _, tag := range metaStringList(fileMeta, "tags") {
				tag = strings.TrimPrefix(tag, "#")
				if tag == prefix {
					return tag, "tag:" + m.Key
				}
				if strings.HasPrefix(tag, prefix+"/") {
					return strings.TrimPrefix(tag, prefix+"/"), "tag:" + m.Key
				}
			}
		case "link":
			for _, link := range metaStringList(fileMeta, "links") {
				if m.Filter == "" || strings.Contains(link, m.Filter) {
					return link, "link"
				}
			}
		}
	}
	return "", ""
}

// defaultProject applies the default-naming strategy, only when enabled.
func (r *Resolver) defaultProject(path string, fileMeta map[string]any) *task.TgProject {
	dn := r.opts.DefaultNaming
	if !dn.Enabled {
		return nil
	}

	var name string
	switch dn.Strategy {
	case "filename":
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	case "foldername":
		dir := parentDir(path)
		if dir != "" {
			name = filepath.Base(dir)
		}
	case "metadata":
		if v, ok := fileMeta[dn.MetadataKey]; ok {
			name = toString(v)
		}
	}
	if name == "" {
		return nil
	}
	return &task.TgProject{
		Type:   task.TgProjectTypeDefault,
		Name:   name,
		Source: dn.Strategy,
	}
}

// ---------------------------------------------------------------------
// Directory cache
// ---------------------------------------------------------------------

// dirConfig returns the cached config resolution for a directory,
// computing it at most once concurrently via singleflight.
func (r *Resolver) dirConfig(ctx context.Context, dir string) *dirEntry {
	if r.opts.ConfigFileName == "" {
		return nil
	}

	r.mu.RLock()
	entry, ok := r.dirs[dir]
	r.mu.RUnlock()
	if ok && r.dirEntryValid(entry) {
		return entry
	}

	v, _, _ := r.sf.Do("dir:"+dir, func() (any, error) {
		entry := r.lookupDirConfig(ctx, dir)
		r.mu.Lock()
		if prev, ok := r.dirs[dir]; ok {
			entry.Paths = prev.Paths
		}
		if entry.Paths == nil {
			entry.Paths = make(map[string]struct{})
		}
		r.dirs[dir] = entry
		r.mu.Unlock()
		return entry, nil
	})
	return v.(*dirEntry)
}

// dirEntryValid checks the config document's mtime against the entry.
func (r *Resolver) dirEntryValid(entry *dirEntry) bool {
	if entry.ConfigFile == "" {
		return true // cached miss stays valid until explicitly invalidated
	}
	info, err := os.Stat(filepath.Join(r.opts.Root, entry.ConfigFile))
	if err != nil {
		return false // config vanished
	}
	return !info.ModTime().After(entry.ConfigTimestamp)
}

// lookupDirConfig walks up from dir looking for the config document.
func (r *Resolver) lookupDirConfig(ctx context.Context, dir string) *dirEntry {
	_, span := tracer.Start(ctx, "project.lookupDirConfig")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir))

	for d := dir; ; d = parentDir(d) {
		cfgPath := r.opts.ConfigFileName
		if d != "" {
			cfgPath = d + "/" + r.opts.ConfigFileName
		}
		abs := filepath.Join(r.opts.Root, filepath.FromSlash(cfgPath))
		info, err := os.Stat(abs)
		if err == nil && !info.IsDir() {
			content, err := os.ReadFile(abs)
			if err != nil {
				r.logger.Warn("unreadable project config document",
					slog.String("path", cfgPath),
					slog.String("error", err.Error()))
				break
			}
			dirConfigParses.Inc()
			return &dirEntry{
				ConfigFile:      cfgPath,
				ConfigData:      ParseConfigDocument(string(content)),
				ConfigTimestamp: info.ModTime(),
			}
		}
		if d == "" || !r.opts.SearchRecursively {
			break
		}
	}
	return &dirEntry{} // cached miss
}

// HandleConfigChange invalidates caches after a config document is
// created, modified, or deleted.
//
// Description:
//
//	Drops every directory cache entry at or below the changed
//	document's directory and purges every file cache entry attributed
//	to them. Walk-up resolution means a directory's config always
//	lives at or above it, so any entry under cfgDir may have resolved
//	to the changed document, to one of its ancestors (now shadowed by
//	a closer config), or to a cached miss the new document fills.
func (r *Resolver) HandleConfigChange(path string) {
	path = filter.NormalizePath(path)
	if filepath.Base(path) != r.opts.ConfigFileName {
		return
	}
	cfgDir := parentDir(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	for dir, entry := range r.dirs {
		if !isWithin(dir, cfgDir) {
			continue
		}
		for p := range entry.Paths {
			delete(r.files, p)
		}
		delete(r.dirs, dir)
		dirCacheInvalidations.Inc()
	}

	r.logger.Debug("project config change handled", slog.String("path", path))
}

// RemoveFile drops a file from the per-file cache and from directory
// dependency tracking. Used on delete.
func (r *Resolver) RemoveFile(path string) {
	path = filter.NormalizePath(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
	for _, entry := range r.dirs {
		delete(entry.Paths, path)
	}
}

// ---------------------------------------------------------------------
// File cache internals
// ---------------------------------------------------------------------

func (r *Resolver) validEntry(path string) (*CachedProjectData, bool) {
	r.mu.RLock()
	entry, ok := r.files[path]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	info, err := os.Stat(filepath.Join(r.opts.Root, filepath.FromSlash(path)))
	if err != nil || info.ModTime().After(entry.Timestamp) {
		return nil, false
	}

	if entry.ConfigSource != "" {
		cfgInfo, err := os.Stat(filepath.Join(r.opts.Root, filepath.FromSlash(entry.ConfigSource)))
		if err != nil || cfgInfo.ModTime().After(entry.Timestamp) {
			return nil, false
		}
	}
	return entry, true
}

func (r *Resolver) store(path string, data CachedProjectData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = &data
	if entry, ok := r.dirs[parentDir(path)]; ok {
		if entry.Paths == nil {
			entry.Paths = make(map[string]struct{})
		}
		entry.Paths[path] = struct{}{}
	}
}

// readFrontmatter loads a file's frontmatter, tolerating missing files.
func (r *Resolver) readFrontmatter(path string) map[string]any {
	content, err := os.ReadFile(filepath.Join(r.opts.Root, filepath.FromSlash(path)))
	if err != nil {
		return nil
	}
	return ParseFrontmatter(string(content))
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// isWithin reports whether dir is candidate itself or beneath it.
func isWithin(dir, ancestor string) bool {
	if ancestor == "" {
		return true
	}
	return dir == ancestor || strings.HasPrefix(dir, ancestor+"/")
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func metaStringList(meta map[string]any, key string) []string {
	raw, ok := meta[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
