package app

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	actx "go.hackfix.me/stash/app/context"
)

type testApp struct {
	*App
	fs             vfs.FileSystem
	stdout, stderr *bytes.Buffer
	env            *mockEnv
}

func newTestApp(t *testing.T, options ...Option) *testApp {
	t.Helper()

	var (
		fs             = memoryfs.New()
		stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
		env            = &mockEnv{env: map[string]string{}}
	)

	opts := []Option{
		WithContext(context.Background()),
		WithFDs(&bytes.Buffer{}, stdout, stderr),
		WithFS(fs),
		WithLogger(false, false),
		WithEnv(env),
	}
	opts = append(opts, options...)
	app, err := New(opts...)
	require.NoError(t, err)

	return &testApp{App: app, fs: fs, stdout: stdout, stderr: stderr, env: env}
}

// Run executes the command, with stdout reset so that it only contains the
// command output.
func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	return ta.App.Run(args)
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = &mockEnv{}

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}
