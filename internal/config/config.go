// Package config loads the declarative TOML configuration document that
// describes every adapter and backup binding, per spec.md §6. Grounded on
// other_examples' arumata-devback config adapter for the BurntSushi/toml
// decode-into-struct pattern, retargeted from a single flat document onto
// bacup's named-section-per-adapter-kind shape.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// EnvVar is the environment variable that selects the configuration path.
// When unset, DefaultFile is read from the working directory, per spec.md §6.
const EnvVar = "BACUP_CONFIG"

// DefaultFile is the well-known configuration filename used when EnvVar is unset.
const DefaultFile = "bacup.toml"

// AWSSection configures an ObjectBucket destination, per spec.md §6
// "[aws.<name>]".
type AWSSection struct {
	Bucket         string `toml:"bucket"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Endpoint       string `toml:"endpoint"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SSHSection configures a SecureShell destination, per spec.md §6
// "[ssh.<name>]".
type SSHSection struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	PrivateKey string `toml:"private_key"`
}

// GitSection configures a VersionControl destination, per spec.md §6
// "[git.<name>]".
type GitSection struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	PrivateKey string `toml:"private_key"`
	Repository string `toml:"repository"`
	Branch     string `toml:"branch"`
	LocalPath  string `toml:"local_path"`
}

// LocalhostSection configures a LocalDirectory destination, per spec.md §6
// "[localhost.<name>]".
type LocalhostSection struct {
	Path string `toml:"path"`
}

// FoldersSection configures a Folder source, per spec.md §6
// "[folders.<name>]".
type FoldersSection struct {
	Pattern string `toml:"pattern"`
}

// PostgresSection configures a Postgres source, per spec.md §6
// "[postgres.<name>]".
type PostgresSection struct {
	Username string `toml:"username"`
	DBName   string `toml:"db_name"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
}

// DockerSection configures a ContainerExec source, per spec.md §6
// "[docker.<name>]".
type DockerSection struct {
	ContainerName string `toml:"container_name"`
	Command       string `toml:"command"`
}

// BackupSection binds a source, a destination, a cadence, and a remote root
// into one scheduled job, per spec.md §6 "[backup.<name>]".
type BackupSection struct {
	What       string `toml:"what"`
	Where      string `toml:"where"`
	When       string `toml:"when"`
	RemotePath string `toml:"remote_path"`
	Compress   bool   `toml:"compress"`
	KeepLast   int    `toml:"keep_last"`
}

// Document is the full decoded configuration document. Every *Section map
// is keyed by the name after the dot in its TOML table header, e.g.
// "[folders.home]" decodes into Folders["home"].
type Document struct {
	AWS       map[string]AWSSection       `toml:"aws"`
	SSH       map[string]SSHSection       `toml:"ssh"`
	Git       map[string]GitSection       `toml:"git"`
	Localhost map[string]LocalhostSection `toml:"localhost"`
	Folders   map[string]FoldersSection   `toml:"folders"`
	Postgres  map[string]PostgresSection  `toml:"postgres"`
	Docker    map[string]DockerSection    `toml:"docker"`
	Backup    map[string]BackupSection    `toml:"backup"`
}

// Path resolves the configuration file location: EnvVar if set, else
// DefaultFile in the working directory.
func Path() string {
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}
	return DefaultFile
}

// Load reads and decodes the document at path. A missing or malformed file
// is a ConfigInvalid error per spec.md §7 — fatal at startup, the caller's
// responsibility to exit non-zero.
func Load(path string) (*Document, error) {
	var doc Document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("config: decoding %q: %w", path, err)
	}
	return &doc, nil
}
