package upgrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAPIBase    = "https://api.github.com"
	defaultWebBase    = "https://github.com"
	defaultStagingDir = "updates"
	userAgent         = "wanwatch-updater"
	maxArchiveBytes   = 256 << 20
)

// SignatureVerifier validates a downloaded archive against its detached signature.
type SignatureVerifier interface {
	Verify(ctx context.Context, artifactPath, signaturePath string) error
}

// Installer unpacks a verified archive into place.
type Installer interface {
	Install(ctx context.Context, archivePath string) error
}

// GitHubUpdater follows the latest release of Owner/Repo. Release archives
// are named <repo>-<tag>.zip with a <repo>-<tag>.zip.minisig next to them.
type GitHubUpdater struct {
	Owner      string
	Repo       string
	Current    string
	StagingDir string
	APIBase    string
	WebBase    string
	HTTPClient *http.Client
	Verifier   SignatureVerifier
	Installer  Installer
	Logger     *log.Logger
}

type latestRelease struct {
	TagName     string    `json:"tag_name"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []struct {
		Name string `json:"name"`
		URL  string `json:"browser_download_url"`
	} `json:"assets"`
}

func (u *GitHubUpdater) CheckForUpdate(ctx context.Context) (*Release, error) {
	if strings.TrimSpace(u.Owner) == "" || strings.TrimSpace(u.Repo) == "" {
		return nil, errors.New("update owner and repo are required")
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(orDefault(u.APIBase, defaultAPIBase), "/"), u.Owner, u.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch latest release: %s", resp.Status)
	}
	var latest latestRelease
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, fmt.Errorf("decode latest release: %w", err)
	}
	if latest.TagName == "" {
		return nil, errors.New("latest release has no tag")
	}

	if !Newer(latest.TagName, u.Current) {
		u.logf("upgrade: no update found (current %s, latest %s)", u.Current, latest.TagName)
		return nil, nil
	}

	rel := &Release{
		Tag:         latest.TagName,
		PublishedAt: latest.PublishedAt,
		ArchiveName: fmt.Sprintf("%s-%s.zip", u.Repo, latest.TagName),
	}
	for _, a := range latest.Assets {
		switch a.Name {
		case rel.ArchiveName:
			rel.ArchiveURL = a.URL
		case rel.ArchiveName + ".minisig":
			rel.SignatureURL = a.URL
		}
	}
	download := fmt.Sprintf("%s/%s/%s/releases/download/%s/", strings.TrimRight(orDefault(u.WebBase, defaultWebBase), "/"), u.Owner, u.Repo, latest.TagName)
	if rel.ArchiveURL == "" {
		rel.ArchiveURL = download + rel.ArchiveName
	}
	if rel.SignatureURL == "" {
		rel.SignatureURL = download + rel.ArchiveName + ".minisig"
	}
	u.logf("upgrade: update found (current %s, latest %s)", u.Current, latest.TagName)
	return rel, nil
}

// ApplyUpdate downloads and verifies the release archive, then hands it to
// the Installer when one is set. The staged archive is removed afterwards.
func (u *GitHubUpdater) ApplyUpdate(ctx context.Context, rel Release) error {
	if u.Verifier == nil {
		return errors.New("signature verifier not configured")
	}
	if rel.ArchiveName == "" || rel.ArchiveURL == "" || rel.SignatureURL == "" {
		return errors.New("release archive and signature are required")
	}
	dir := orDefault(u.StagingDir, defaultStagingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	archivePath := filepath.Join(dir, filepath.Base(rel.ArchiveName))
	signaturePath := archivePath + ".minisig"
	defer os.Remove(archivePath)
	defer os.Remove(signaturePath)

	u.logf("upgrade: downloading %s", rel.ArchiveURL)
	if err := u.download(ctx, rel.ArchiveURL, archivePath); err != nil {
		return err
	}
	if err := u.download(ctx, rel.SignatureURL, signaturePath); err != nil {
		return err
	}
	if err := u.Verifier.Verify(ctx, archivePath, signaturePath); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	if u.Installer == nil {
		u.logf("upgrade: %s verified, no installer configured", rel.ArchiveName)
		return nil
	}
	if err := u.Installer.Install(ctx, archivePath); err != nil {
		return fmt.Errorf("install %s: %w", rel.Tag, err)
	}
	u.logf("upgrade: installed %s", rel.Tag)
	return nil
}

func (u *GitHubUpdater) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := u.client().Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", url, resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxArchiveBytes)); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", dest, err)
	}
	return nil
}

func (u *GitHubUpdater) client() *http.Client {
	if u.HTTPClient != nil {
		return u.HTTPClient
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

func (u *GitHubUpdater) logf(format string, args ...any) {
	if u.Logger != nil {
		u.Logger.Printf(format, args...)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var _ Updater = (*GitHubUpdater)(nil)
