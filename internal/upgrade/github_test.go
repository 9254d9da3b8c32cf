package upgrade

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingsantohq/wanwatch/internal/upgrade/verify"
	"github.com/pingsantohq/wanwatch/internal/upgrade/verify/verifytest"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type releaseServer struct {
	*httptest.Server
	archive   []byte
	signature []byte
	withAsset bool
}

func newReleaseServer(t *testing.T, tag string, archive, signature []byte, withAsset bool) *releaseServer {
	t.Helper()
	rs := &releaseServer{archive: archive, signature: signature, withAsset: withAsset}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/ip-monitor/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"tag_name": tag, "published_at": "2025-01-02T03:04:05Z"}
		if rs.withAsset {
			body["assets"] = []map[string]string{
				{"name": "ip-monitor-" + tag + ".zip", "browser_download_url": rs.URL + "/assets/archive"},
				{"name": "ip-monitor-" + tag + ".zip.minisig", "browser_download_url": rs.URL + "/assets/sig"},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/assets/archive", func(w http.ResponseWriter, r *http.Request) { w.Write(rs.archive) })
	mux.HandleFunc("/assets/sig", func(w http.ResponseWriter, r *http.Request) { w.Write(rs.signature) })
	mux.HandleFunc("/acme/ip-monitor/releases/download/"+tag+"/ip-monitor-"+tag+".zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(rs.archive)
	})
	mux.HandleFunc("/acme/ip-monitor/releases/download/"+tag+"/ip-monitor-"+tag+".zip.minisig", func(w http.ResponseWriter, r *http.Request) {
		w.Write(rs.signature)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

type recordingInstaller struct {
	paths    []string
	contents [][]byte
}

func (r *recordingInstaller) Install(ctx context.Context, archivePath string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	r.paths = append(r.paths, archivePath)
	r.contents = append(r.contents, data)
	return nil
}

func TestCheckForUpdateCurrent(t *testing.T) {
	rs := newReleaseServer(t, "v1.0.0", nil, nil, true)
	u := &GitHubUpdater{Owner: "acme", Repo: "ip-monitor", Current: "1.0.0", APIBase: rs.URL}
	rel, err := u.CheckForUpdate(context.Background())
	require.NoError(t, err)
	require.Nil(t, rel)
}

func TestCheckForUpdateUsesAssets(t *testing.T) {
	rs := newReleaseServer(t, "v1.1.0", nil, nil, true)
	u := &GitHubUpdater{Owner: "acme", Repo: "ip-monitor", Current: "1.0.0", APIBase: rs.URL}
	rel, err := u.CheckForUpdate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rel)
	require.Equal(t, "v1.1.0", rel.Tag)
	require.Equal(t, "ip-monitor-v1.1.0.zip", rel.ArchiveName)
	require.Equal(t, rs.URL+"/assets/archive", rel.ArchiveURL)
	require.Equal(t, rs.URL+"/assets/sig", rel.SignatureURL)
	require.Equal(t, 2025, rel.PublishedAt.Year())
}

func TestCheckForUpdateFallsBackToDownloadURL(t *testing.T) {
	rs := newReleaseServer(t, "v2.0.0", nil, nil, false)
	u := &GitHubUpdater{Owner: "acme", Repo: "ip-monitor", Current: "1.0.0", APIBase: rs.URL, WebBase: rs.URL}
	rel, err := u.CheckForUpdate(context.Background())
	require.NoError(t, err)
	require.Equal(t, rs.URL+"/acme/ip-monitor/releases/download/v2.0.0/ip-monitor-v2.0.0.zip", rel.ArchiveURL)
	require.Equal(t, rel.ArchiveURL+".minisig", rel.SignatureURL)
}

func TestCheckForUpdateErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	u := &GitHubUpdater{Owner: "acme", Repo: "ip-monitor", APIBase: ts.URL}
	_, err := u.CheckForUpdate(context.Background())
	require.Error(t, err)
}

func TestApplyUpdateVerifiesAndInstalls(t *testing.T) {
	key := verifytest.NewKey(t)
	archive := buildZip(t, map[string]string{"wanwatch": "binary"})
	rs := newReleaseServer(t, "v1.1.0", archive, key.Sign(archive), false)

	verifier, err := verify.NewMinisignVerifier(key.PublicKeyFile())
	require.NoError(t, err)
	installer := &recordingInstaller{}
	staging := t.TempDir()
	u := &GitHubUpdater{
		Owner:      "acme",
		Repo:       "ip-monitor",
		Current:    "1.0.0",
		APIBase:    rs.URL,
		WebBase:    rs.URL,
		StagingDir: staging,
		Verifier:   verifier,
		Installer:  installer,
	}

	rel, err := u.CheckForUpdate(context.Background())
	require.NoError(t, err)
	require.NoError(t, u.ApplyUpdate(context.Background(), *rel))

	require.Equal(t, []string{filepath.Join(staging, "ip-monitor-v1.1.0.zip")}, installer.paths)
	require.Equal(t, archive, installer.contents[0])

	leftovers, err := os.ReadDir(staging)
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestApplyUpdateRejectsBadSignature(t *testing.T) {
	key := verifytest.NewKey(t)
	archive := buildZip(t, map[string]string{"wanwatch": "binary"})
	rs := newReleaseServer(t, "v1.1.0", archive, key.Sign([]byte("something else")), true)

	verifier, err := verify.NewMinisignVerifier(key.PublicKeyFile())
	require.NoError(t, err)
	installer := &recordingInstaller{}
	u := &GitHubUpdater{
		Owner:      "acme",
		Repo:       "ip-monitor",
		Current:    "1.0.0",
		APIBase:    rs.URL,
		StagingDir: t.TempDir(),
		Verifier:   verifier,
		Installer:  installer,
	}
	rel, err := u.CheckForUpdate(context.Background())
	require.NoError(t, err)

	err = u.ApplyUpdate(context.Background(), *rel)
	require.ErrorIs(t, err, verify.ErrBadSignature)
	require.Empty(t, installer.paths)
}

func TestApplyUpdateRequiresVerifier(t *testing.T) {
	u := &GitHubUpdater{}
	require.Error(t, u.ApplyUpdate(context.Background(), Release{ArchiveName: "a.zip", ArchiveURL: "x", SignatureURL: "y"}))
}
