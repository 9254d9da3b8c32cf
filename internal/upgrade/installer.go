package upgrade

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ZipInstaller extracts a release archive over Dir while keeping the local
// configuration: ConfigFile is copied into BackupDir as <n>-<name> before
// extraction and written back afterwards.
type ZipInstaller struct {
	Dir        string
	ConfigFile string
	BackupDir  string
	Logger     *log.Logger
}

func (i *ZipInstaller) Install(ctx context.Context, archivePath string) error {
	dir := orDefault(i.Dir, ".")
	backup, err := i.backupConfig()
	if err != nil {
		return err
	}

	if err := extractZip(ctx, archivePath, dir); err != nil {
		if backup != "" {
			if rerr := i.restoreConfig(backup); rerr != nil {
				i.logf("upgrade installer: restore after failed extract: %v", rerr)
			}
		}
		return err
	}

	if backup != "" {
		if err := i.restoreConfig(backup); err != nil {
			return err
		}
		i.logf("upgrade installer: restored %s from %s", i.ConfigFile, backup)
	}
	return nil
}

// backupConfig returns the backup path, or "" when there is no config to keep.
func (i *ZipInstaller) backupConfig() (string, error) {
	if strings.TrimSpace(i.ConfigFile) == "" {
		return "", nil
	}
	data, err := os.ReadFile(i.ConfigFile)
	if errors.Is(err, os.ErrNotExist) {
		i.logf("upgrade installer: %s not found, skipping backup", i.ConfigFile)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}

	backupDir := orDefault(i.BackupDir, filepath.Join(filepath.Dir(i.ConfigFile), "backup"))
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	existing, err := os.ReadDir(backupDir)
	if err != nil {
		return "", fmt.Errorf("list backups: %w", err)
	}
	path := filepath.Join(backupDir, fmt.Sprintf("%d-%s", len(existing), filepath.Base(i.ConfigFile)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

func (i *ZipInstaller) restoreConfig(backup string) error {
	data, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := os.WriteFile(i.ConfigFile, data, 0o600); err != nil {
		return fmt.Errorf("restore config: %w", err)
	}
	return nil
}

func (i *ZipInstaller) logf(format string, args ...any) {
	if i.Logger != nil {
		i.Logger.Printf(format, args...)
	}
}

func extractZip(ctx context.Context, archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer in.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

var _ Installer = (*ZipInstaller)(nil)
