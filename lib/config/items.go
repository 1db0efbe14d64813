// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "gopkg.in/yaml.v3"

// Project is one entry of projects.yaml.
type Project struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Description string `yaml:"description,omitempty"`

	// Exclude holds gitignore-syntax patterns relative to Path.
	Exclude []string `yaml:"exclude,omitempty"`

	// Databases names entries of databases.yaml that belong to this
	// project. A quick snapshot backs them up alongside the project.
	Databases []string `yaml:"databases,omitempty"`

	Enabled bool `yaml:"enabled"`

	// Tags and Importance are copied into every sidecar the project
	// produces.
	Tags       []string `yaml:"tags,omitempty"`
	Importance string   `yaml:"importance,omitempty"`

	// Incremental makes scheduled backups incremental against the last
	// full archive.
	Incremental bool `yaml:"incremental,omitempty"`

	// Complete additionally rebuilds <name>_complete.tar.gz, which
	// ignores the default exclusions.
	Complete bool `yaml:"complete,omitempty"`
}

// UnmarshalYAML decodes a project with Enabled defaulting to true.
func (p *Project) UnmarshalYAML(node *yaml.Node) error {
	type plain Project
	value := plain{Enabled: true}
	if err := node.Decode(&value); err != nil {
		return err
	}
	*p = Project(value)
	return nil
}

// Database engines.
const (
	EngineMySQL  = "mysql"
	EngineSQLite = "sqlite"
)

// Database is one entry of databases.yaml.
type Database struct {
	Name   string `yaml:"name"`
	Engine string `yaml:"engine"`

	// MySQL connection. Empty fields take mysql_defaults.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`

	// Password is either plaintext or an "enc:" vault value.
	Password string `yaml:"password,omitempty"`

	// Path is the database file for the sqlite engine.
	Path string `yaml:"path,omitempty"`

	// Schema is the MySQL schema to dump. Defaults to Name.
	Schema string `yaml:"schema,omitempty"`

	Description string   `yaml:"description,omitempty"`
	Enabled     bool     `yaml:"enabled"`
	DumpOptions []string `yaml:"dump_options,omitempty"`
}

// UnmarshalYAML decodes a database with Enabled defaulting to true and
// Engine defaulting to mysql.
func (d *Database) UnmarshalYAML(node *yaml.Node) error {
	type plain Database
	value := plain{Enabled: true, Engine: EngineMySQL}
	if err := node.Decode(&value); err != nil {
		return err
	}
	*d = Database(value)
	return nil
}

// SchemaName returns the MySQL schema to dump.
func (d Database) SchemaName() string {
	if d.Schema != "" {
		return d.Schema
	}
	return d.Name
}
