package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/memoriae",
		LogDir:  "/home/user/.local/share/memoriae/log",
		Server:  ServerConfig{ListenAddr: "127.0.0.1:9000"},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: "/home/user/.local/share/memoriae/data",
		},
		Archive: ArchiveConfig{
			Type:          "filesystem",
			FSArchiveRoot: "/srv/memoriae/archive",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/memoriae/keys/memoriae.pub",
			PrivateKeyPath: "/home/user/.local/share/memoriae/keys/memoriae.key",
		},
		Timeline: TimelineConfig{GroupWindowMS: 30000},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("Server.ListenAddr = %q, want %q", got.Server.ListenAddr, "127.0.0.1:9000")
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "sqlite")
	}
	if got.Archive.Type != "filesystem" {
		t.Errorf("Archive.Type = %q, want %q", got.Archive.Type, "filesystem")
	}
	if got.Archive.FSArchiveRoot != "/srv/memoriae/archive" {
		t.Errorf("Archive.FSArchiveRoot = %q, want %q", got.Archive.FSArchiveRoot, "/srv/memoriae/archive")
	}
	if got.Encryption.PublicKeyPath != original.Encryption.PublicKeyPath {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", got.Encryption.PublicKeyPath, original.Encryption.PublicKeyPath)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Timeline.GroupWindowMS != 30000 {
		t.Errorf("Timeline.GroupWindowMS = %d, want %d", got.Timeline.GroupWindowMS, 30000)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/memoriae")

	if cfg.BaseDir != "/data/memoriae" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/memoriae")
	}
	if cfg.LogDir != "/data/memoriae/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/memoriae/log")
	}
	if cfg.Server.ListenAddr == "" {
		t.Error("Server.ListenAddr should have a default")
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "sqlite")
	}
	if cfg.Database.DataDir != "/data/memoriae/data" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/memoriae/data")
	}
	if cfg.Archive.FSArchiveRoot != "/data/memoriae/archive" {
		t.Errorf("Archive.FSArchiveRoot = %q, want %q", cfg.Archive.FSArchiveRoot, "/data/memoriae/archive")
	}
	if cfg.Encryption.PublicKeyPath != "/data/memoriae/keys/memoriae.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/memoriae/keys/memoriae.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/memoriae/keys/memoriae.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/memoriae/keys/memoriae.key")
	}
}

func TestTimelineConfig_GroupWindow(t *testing.T) {
	t.Run("unset returns zero", func(t *testing.T) {
		var tc TimelineConfig
		if got := tc.GroupWindow(); got != 0 {
			t.Errorf("GroupWindow() = %v, want 0", got)
		}
	})

	t.Run("converts milliseconds", func(t *testing.T) {
		tc := TimelineConfig{GroupWindowMS: 90000}
		if got := tc.GroupWindow(); got != 90*time.Second {
			t.Errorf("GroupWindow() = %v, want %v", got, 90*time.Second)
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "memoriae.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "memoriae.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "memoriae.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/memoriae.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
