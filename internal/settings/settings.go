// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package settings loads and validates the service configuration and
// produces the immutable snapshot threaded through every worker
// dispatch.
package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/taskweave/taskweave/internal/filter"
	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/project"
)

// Snapshot is the full configuration at one point in time. Workers
// receive it by value on every dispatch, so a settings reload never
// mutates configuration under an in-flight operation.
type Snapshot struct {
	Vault        VaultSettings        `yaml:"vault" validate:"required"`
	Parser       parser.Config        `yaml:"parser"`
	Filter       FilterSettings       `yaml:"filter" validate:"required"`
	Project      ProjectSettings      `yaml:"project"`
	Orchestrator OrchestratorSettings `yaml:"orchestrator" validate:"required"`
	Server       ServerSettings       `yaml:"server"`
}

// VaultSettings identifies the document root being indexed.
type VaultSettings struct {
	// Root is the absolute path of the vault on disk.
	Root string `yaml:"root" validate:"required"`

	// ID keys snapshot persistence. Defaults to the root path.
	ID string `yaml:"id"`
}

// FilterSettings configures the file filter.
type FilterSettings struct {
	Mode  filter.Mode   `yaml:"mode" validate:"oneof=whitelist blacklist"`
	Rules []filter.Rule `yaml:"rules" validate:"dive"`
}

// ProjectSettings configures the project resolver.
type ProjectSettings struct {
	PathMappings      []project.PathMapping            `yaml:"pathMappings"`
	MetadataKey       string                           `yaml:"metadataKey"`
	DetectionMethods  []parser.ProjectDetectionMethod  `yaml:"detectionMethods" validate:"dive"`
	ConfigFileName    string                           `yaml:"configFileName"`
	SearchRecursively bool                             `yaml:"searchRecursively"`
	DefaultNaming     project.DefaultNaming            `yaml:"defaultNaming"`
	MetadataMappings  []project.MetadataMapping        `yaml:"metadataMappings"`
}

// OrchestratorSettings bounds the worker pool and its failure policy.
type OrchestratorSettings struct {
	Workers          int           `yaml:"workers" validate:"min=1,max=64"`
	RequestTimeout   time.Duration `yaml:"requestTimeout" validate:"gt=0"`
	MaxAttempts      int           `yaml:"maxAttempts" validate:"min=1,max=10"`
	BackoffBase      time.Duration `yaml:"backoffBase" validate:"gt=0"`
	BreakerThreshold int           `yaml:"breakerThreshold" validate:"min=1"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown" validate:"gt=0"`

	// QueueInterval is the minimum spacing between consecutive
	// change-queue dequeues.
	QueueInterval time.Duration `yaml:"queueInterval" validate:"gte=0"`

	// PendingLimit caps the in-flight request table per worker client.
	PendingLimit int `yaml:"pendingLimit" validate:"min=1"`
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Addr string `yaml:"addr"`

	// SnapshotInterval drives periodic index snapshot persistence.
	// Zero disables it.
	SnapshotInterval time.Duration `yaml:"snapshotInterval" validate:"gte=0"`
}

// Default returns a runnable configuration for a given vault root.
func Default(root string) Snapshot {
	return Snapshot{
		Vault:  VaultSettings{Root: root, ID: root},
		Parser: parser.DefaultConfig(),
		Filter: FilterSettings{Mode: filter.ModeBlacklist},
		Project: ProjectSettings{
			MetadataKey:    "project",
			ConfigFileName: "project.md",
		},
		Orchestrator: OrchestratorSettings{
			Workers:          4,
			RequestTimeout:   10 * time.Second,
			MaxAttempts:      3,
			BackoffBase:      100 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			QueueInterval:    25 * time.Millisecond,
			PendingLimit:     256,
		},
		Server: ServerSettings{
			Addr:             ":8420",
			SnapshotInterval: 5 * time.Minute,
		},
	}
}

var validate = validator.New()

// Load reads a YAML settings file over the defaults and validates the
// result. Fields absent from the file keep their default values.
func Load(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	snap := Default("")
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if snap.Vault.ID == "" {
		snap.Vault.ID = snap.Vault.Root
	}
	if err := validate.Struct(snap); err != nil {
		return Snapshot{}, fmt.Errorf("validate settings %s: %w", path, err)
	}
	return snap, nil
}

// ResolverOptions assembles the project resolver configuration.
func (s Snapshot) ResolverOptions() project.Options {
	return project.Options{
		Root:              s.Vault.Root,
		PathMappings:      s.Project.PathMappings,
		MetadataKey:       s.Project.MetadataKey,
		DetectionMethods:  s.Project.DetectionMethods,
		ConfigFileName:    s.Project.ConfigFileName,
		SearchRecursively: s.Project.SearchRecursively,
		DefaultNaming:     s.Project.DefaultNaming,
		MetadataMappings:  s.Project.MetadataMappings,
	}
}
