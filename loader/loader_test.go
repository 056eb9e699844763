package loader

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/ingestion"
)

var testAgent = core.AgentID("eliza")

// pngHeader is enough of a PNG for mimetype to recognise it.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type call struct {
	opts    *ingestion.AddKnowledgeOptions
	replace bool
}

// fakeIngester records calls and fails any document whose content is "fail".
type fakeIngester struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeIngester) record(opts *ingestion.AddKnowledgeOptions, replace bool) (*ingestion.AddKnowledgeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{opts: opts, replace: replace})
	if opts.Content == "fail" {
		return nil, errors.New("ingestion failed")
	}
	return &ingestion.AddKnowledgeResult{DocumentID: opts.DocumentID, FragmentCount: 1, ChunkCount: 1}, nil
}

func (f *fakeIngester) AddKnowledge(_ context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error) {
	return f.record(opts, false)
}

func (f *fakeIngester) UpdateKnowledge(_ context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error) {
	return f.record(opts, true)
}

func (f *fakeIngester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeIngester) byPath() map[string]call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]call, len(f.calls))
	for _, c := range f.calls {
		out[c.opts.Path] = c
	}
	return out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestNew(t *testing.T) {
	_, err := New(nil, testAgent)
	assert.ErrorIs(t, err, ErrIngesterRequired)

	_, err = New(&fakeIngester{}, core.NilID)
	assert.ErrorIs(t, err, ErrAgentRequired)

	_, err = New(&fakeIngester{}, testAgent, WithMaxFileSize(-1))
	assert.Error(t, err)

	l, err := New(&fakeIngester{}, testAgent, WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.txt"), []byte("Plain notes about the project."))
	writeFile(t, filepath.Join(dir, "guides", "setup.md"), []byte("# Setup\n\nRun the installer."))
	writeFile(t, filepath.Join(dir, "images", "logo.png"), pngHeader)
	writeFile(t, filepath.Join(dir, ".secret.txt"), []byte("hidden"))
	writeFile(t, filepath.Join(dir, ".git", "config"), []byte("hidden dir"))
	writeFile(t, filepath.Join(dir, "broken.txt"), []byte("fail"))

	ing := &fakeIngester{}
	l, err := New(ing, testAgent)
	require.NoError(t, err)

	res, err := l.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "broken.txt")

	calls := ing.byPath()
	paths := make([]string, 0, len(calls))
	for p := range calls {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"broken.txt", "guides/setup.md", "images/logo.png", "readme.txt"}, paths)

	readme := calls["readme.txt"]
	assert.False(t, readme.replace)
	assert.Equal(t, "Plain notes about the project.", readme.opts.Content)
	assert.Equal(t, "text/plain", readme.opts.ContentType)
	assert.Equal(t, "readme.txt", readme.opts.Filename)
	assert.Equal(t, Source, readme.opts.Source)
	assert.Equal(t, testAgent, readme.opts.AgentID)
	assert.Equal(t, DocumentID(testAgent, "readme.txt"), readme.opts.DocumentID)

	setup := calls["guides/setup.md"]
	assert.Equal(t, "setup.md", setup.opts.Filename)
	assert.Equal(t, "# Setup\n\nRun the installer.", setup.opts.Content)

	logo := calls["images/logo.png"]
	assert.Equal(t, "image/png", logo.opts.ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), logo.opts.Content)
}

func TestLoadDirectory_StableIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("first version."))

	ing := &fakeIngester{}
	l, err := New(ing, testAgent)
	require.NoError(t, err)

	_, err = l.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("second version."))
	_, err = l.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Equal(t, 2, ing.count())
	assert.Equal(t, ing.calls[0].opts.DocumentID, ing.calls[1].opts.DocumentID, "ids follow the path, not the content")
	assert.NotEqual(t, DocumentID(testAgent, "a.txt"), DocumentID(core.AgentID("other"), "a.txt"))
}

func TestLoadDirectory_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.txt"), []byte("tiny."))
	writeFile(t, filepath.Join(dir, "large.txt"), make([]byte, 2048))

	ing := &fakeIngester{}
	l, err := New(ing, testAgent, WithMaxFileSize(1024))
	require.NoError(t, err)

	res, err := l.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, ing.count())
}

func TestLoadDirectory_Errors(t *testing.T) {
	l, err := New(&fakeIngester{}, testAgent)
	require.NoError(t, err)

	_, err = l.LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, []byte("x"))
	_, err = l.LoadDirectory(context.Background(), file)
	assert.ErrorIs(t, err, ErrNotDirectory)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("a."))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.LoadDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType string
		wantText bool
	}{
		{name: "plain text", data: []byte("hello world"), wantType: "text/plain", wantText: true},
		{name: "json", data: []byte(`{"a": 1}`), wantType: "application/json", wantText: true},
		{name: "png", data: pngHeader, wantType: "image/png", wantText: false},
		{name: "pdf", data: []byte("%PDF-1.7\n"), wantType: "application/pdf", wantText: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotText := detect(tt.data)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantText, gotText)
		})
	}
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden(".git"))
	assert.True(t, isHidden(".env"))
	assert.False(t, isHidden("."))
	assert.False(t, isHidden(".."))
	assert.False(t, isHidden("file.txt"))
}
