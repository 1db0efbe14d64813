// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
)

// Sealer encrypts a configuration value. Already-sealed and empty
// values are returned unchanged.
type Sealer interface {
	SealValue(value string) (string, error)
}

// SaveProjects atomically rewrites projects.yaml with mode 0600.
func (c *Config) SaveProjects() error {
	return c.save(c.ProjectsPath(), projectsDocument{Projects: c.Projects})
}

// SaveDatabases atomically rewrites databases.yaml with mode 0600.
func (c *Config) SaveDatabases() error {
	return c.save(c.DatabasesPath(), databasesDocument{Databases: c.Databases})
}

func (c *Config) save(path string, document any) error {
	if c.Dir == "" {
		return fmt.Errorf("config was not loaded from a directory")
	}
	data, err := yaml.Marshal(document)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return atomicfile.WriteFile(path, data, 0600)
}

// SealPasswords seals every plaintext database password in place and
// reports whether anything changed. The caller persists the result
// with SaveDatabases.
func (c *Config) SealPasswords(sealer Sealer) (bool, error) {
	changed := false
	for index := range c.Databases {
		database := &c.Databases[index]
		sealed, err := sealer.SealValue(database.Password)
		if err != nil {
			return changed, fmt.Errorf("sealing password for %s: %w", database.Name, err)
		}
		if sealed != database.Password {
			database.Password = sealed
			changed = true
		}
	}
	return changed, nil
}

// SetDatabasePassword replaces the stored password of a database with
// an already-sealed value.
func (c *Config) SetDatabasePassword(name, sealed string) error {
	for index := range c.Databases {
		if c.Databases[index].Name == name {
			c.Databases[index].Password = sealed
			return nil
		}
	}
	return fmt.Errorf("unknown database %q", name)
}
