package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cubeglobe-bot/bot/config"
	"github.com/watzon/cubeglobe-bot/bot/state"
	"github.com/watzon/cubeglobe-bot/render"
)

const testTiles = `
tile_width = 8
tile_height = 8
background = "#87ceeb"

[tiles]
water = { color = "#3366cc" }
sand  = { color = "#e0c68a" }
grass = { color = "#4caf50" }
soil  = { color = "#795548" }
rock  = { color = "#9e9e9e" }
`

const testConfig = `
[bot]
map_size = 6
show_seed = true
state_path = %q
images_dir = %q

[credentials]
base = %q
token = "token"
`

type counters struct {
	requests int32
	statuses int32
	verified int32
}

// fakeMastodon counts every request and accepts uploads and statuses.
func fakeMastodon(t *testing.T) (*httptest.Server, *counters) {
	t.Helper()
	c := &counters{}

	mux := http.NewServeMux()
	media := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"5","type":"image"}`)
	}
	mux.HandleFunc("/api/v1/media", media)
	mux.HandleFunc("/api/v2/media", media)
	mux.HandleFunc("/api/v1/statuses", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.statuses, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"9","uri":"https://social.example/statuses/9","url":"https://social.example/@bot/9"}`)
	})
	mux.HandleFunc("/api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.verified, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","username":"bot","acct":"bot"}`)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.requests, 1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

type fixture struct {
	dir       string
	config    string
	tiles     string
	statePath string
	imagesDir string
}

func newFixture(t *testing.T, base string) *fixture {
	t.Helper()
	for _, key := range []string{"MASTODON_BASE", "MASTODON_CLIENT_ID", "MASTODON_CLIENT_SECRET", "MASTODON_ACCESS_TOKEN", "TZ"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		config:    filepath.Join(dir, "config.toml"),
		tiles:     filepath.Join(dir, "tiles.conf"),
		statePath: filepath.Join(dir, "state"),
		imagesDir: filepath.Join(dir, "images"),
	}

	data := fmt.Sprintf(testConfig, f.statePath, f.imagesDir, base)
	require.NoError(t, os.WriteFile(f.config, []byte(data), 0o644))
	require.NoError(t, os.WriteFile(f.tiles, []byte(testTiles), 0o644))
	return f
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestImmediatePost(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)

	err := execute("--config", f.config, "--tiles", f.tiles, "--immediate")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls.statuses))

	st, err := state.NewStore(f.statePath, f.imagesDir).Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), st.ID)
	assert.Equal(t, state.Awaiting, st.Phase)
	assert.False(t, st.LastPost.IsZero())

	_, err = os.Stat(filepath.Join(f.imagesDir, "1.png"))
	assert.NoError(t, err)
}

func TestMissingTilesFailsBeforeNetwork(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)

	err := execute("--config", f.config, "--tiles", filepath.Join(f.dir, "missing.conf"), "--immediate")
	assert.ErrorIs(t, err, render.ErrInvalidTiles)
	assert.Zero(t, atomic.LoadInt32(&calls.requests))

	_, err = os.Stat(f.statePath)
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidTilesFailsBeforeNetwork(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)
	require.NoError(t, os.WriteFile(f.tiles, []byte("tile_width = 6\n"), 0o644))

	err := execute("--config", f.config, "--tiles", f.tiles, "--immediate")
	assert.ErrorIs(t, err, render.ErrInvalidTiles)
	assert.Zero(t, atomic.LoadInt32(&calls.requests))
}

func TestInvalidConfig(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)
	require.NoError(t, os.WriteFile(f.config, []byte("[bot]\nmap_size = -1\n"), 0o644))

	err := execute("--config", f.config, "--tiles", f.tiles, "--immediate")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Zero(t, atomic.LoadInt32(&calls.requests))
}

func TestWorldSettingsCheckedBeforeNetwork(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)
	body := fmt.Sprintf(testConfig, f.statePath, f.imagesDir, srv.URL)
	body = strings.Replace(body, "map_size = 6\n", "map_size = 6\nmax_water_level = 50\n", 1)
	require.NoError(t, os.WriteFile(f.config, []byte(body), 0o644))

	err := execute("verify", "--config", f.config, "--tiles", f.tiles)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	err = execute("--config", f.config, "--tiles", f.tiles, "--immediate")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Zero(t, atomic.LoadInt32(&calls.requests))
}

func TestVerify(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)

	require.NoError(t, execute("verify", "--config", f.config, "--tiles", f.tiles))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls.verified))

	err := execute("verify", "--config", f.config, "--tiles", filepath.Join(f.dir, "missing.conf"))
	assert.ErrorIs(t, err, render.ErrInvalidTiles)
}

func TestRenderCommand(t *testing.T) {
	srv, calls := fakeMastodon(t)
	f := newFixture(t, srv.URL)

	out := filepath.Join(f.dir, "out.png")
	err := execute("render", "--config", f.config, "--tiles", f.tiles, "--out", out, "--seed", "42")
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls.requests))

	img, err := gg.LoadPNG(out)
	require.NoError(t, err)
	assert.Equal(t, 6*8, img.Bounds().Dx())

	// The same seed renders the same landscape.
	again := filepath.Join(f.dir, "again.png")
	require.NoError(t, execute("render", "--config", f.config, "--tiles", f.tiles, "--out", again, "--seed", "42"))
	a, err := os.ReadFile(out)
	require.NoError(t, err)
	b, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
