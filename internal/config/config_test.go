package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `
[folders.home]
pattern = "/data/home/**/*.conf"

[postgres.main]
username = "app"
db_name = "appdb"

[aws.archive]
bucket = "my-bucket"
region = "us-east-1"

[backup.home-backup]
what = "folders.home"
where = "aws.archive"
when = "daily 03:15"
remote_path = "/backups/home"
compress = true
keep_last = 5
`

func TestLoadDecodesAllSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bacup.toml")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if doc.Folders["home"].Pattern != "/data/home/**/*.conf" {
		t.Errorf("Folders[home].Pattern = %q", doc.Folders["home"].Pattern)
	}
	if doc.Postgres["main"].DBName != "appdb" {
		t.Errorf("Postgres[main].DBName = %q", doc.Postgres["main"].DBName)
	}
	if doc.AWS["archive"].Bucket != "my-bucket" {
		t.Errorf("AWS[archive].Bucket = %q", doc.AWS["archive"].Bucket)
	}

	b, ok := doc.Backup["home-backup"]
	if !ok {
		t.Fatal("Backup[home-backup] missing")
	}
	if b.What != "folders.home" || b.Where != "aws.archive" || b.KeepLast != 5 || !b.Compress {
		t.Errorf("Backup[home-backup] = %+v", b)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPathUsesEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "/tmp/custom.toml")
	if got := Path(); got != "/tmp/custom.toml" {
		t.Fatalf("Path() = %q, want /tmp/custom.toml", got)
	}
}

func TestPathDefaultsWhenUnset(t *testing.T) {
	t.Setenv(EnvVar, "")
	if got := Path(); got != DefaultFile {
		t.Fatalf("Path() = %q, want %q", got, DefaultFile)
	}
}
