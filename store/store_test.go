package store

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcBackend struct {
	initFn   func(loc Location) error
	importFn func(b *Batch[string, int]) error
	exportFn func(b *Batch[string, int]) error
	closed   atomic.Int32
}

var _ Backend[string, int] = &funcBackend{}

func (fb *funcBackend) Init(loc Location) error {
	if fb.initFn == nil {
		return nil
	}
	return fb.initFn(loc)
}

func (fb *funcBackend) Import(b *Batch[string, int]) error {
	if fb.importFn == nil {
		return nil
	}
	return fb.importFn(b)
}

func (fb *funcBackend) Export(b *Batch[string, int]) error {
	if fb.exportFn == nil {
		return nil
	}
	return fb.exportFn(b)
}

func (fb *funcBackend) Close() error {
	fb.closed.Add(1)
	return nil
}

func newTestStore(t *testing.T, fb *funcBackend, opts ...Option) *Store[string, int] {
	t.Helper()
	opts = append([]Option{WithFS(memoryfs.New()), WithName("test")}, opts...)
	s, err := New[string, int]("/data", fb, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreNew(t *testing.T) {
	t.Parallel()

	t.Run("ok/root_created", func(t *testing.T) {
		t.Parallel()
		fs := memoryfs.New()
		var loc Location
		fb := &funcBackend{initFn: func(l Location) error {
			loc = l
			return nil
		}}
		s, err := New[string, int]("/data/nested", fb, WithFS(fs), WithName("profiles"))
		require.NoError(t, err)
		fi, err := fs.Stat("/data/nested")
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
		assert.Equal(t, StatusIdle, s.Status())
		assert.Equal(t, "profiles", loc.Name)
		assert.Equal(t, "/data/nested", loc.Root)
		assert.Equal(t, "/data/nested/profiles.bin", loc.Path("profiles.bin"))
	})

	t.Run("ok/default_names", func(t *testing.T) {
		t.Parallel()
		names := NewNames("DataStore")
		fs := memoryfs.New()
		s1, err := New[string, int]("/data", &funcBackend{}, WithFS(fs), WithNames(names))
		require.NoError(t, err)
		s2, err := New[string, int]("/data", &funcBackend{}, WithFS(fs), WithNames(names))
		require.NoError(t, err)
		assert.Equal(t, "DataStore1", s1.Name())
		assert.Equal(t, "DataStore2", s2.Name())
	})

	t.Run("err/init", func(t *testing.T) {
		t.Parallel()
		errInit := errors.New("no space")
		fb := &funcBackend{initFn: func(Location) error { return errInit }}
		_, err := New[string, int]("/data", fb, WithFS(memoryfs.New()))
		assert.ErrorIs(t, err, errInit)
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, StatusInitializing, opErr.Op)
	})

	t.Run("err/missing_args", func(t *testing.T) {
		t.Parallel()
		_, err := New[string, int]("", &funcBackend{})
		assert.EqualError(t, err, "store root directory is required")
		_, err = New[string, int]("/data", nil)
		assert.EqualError(t, err, "store backend is required")
	})
}

func TestStoreMutators(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &funcBackend{})

	require.NoError(t, s.Add("a", 1))
	err := s.Add("a", 2)
	assert.ErrorIs(t, err, ErrKeyExists)
	require.NoError(t, s.Set("b", 2))
	require.NoError(t, s.Set("b", 3))

	v, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "key not found: 'missing'")

	v, ok := s.TryGet("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = s.TryGet("missing")
	assert.False(t, ok)

	assert.True(t, s.ContainsKey("a"))
	assert.False(t, s.ContainsKey("c"))
	assert.True(t, s.ContainsValue(3))
	assert.False(t, s.ContainsValue(42))

	keys := s.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	snap["z"] = 26
	assert.False(t, s.ContainsKey("z"))

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStoreImportExport(t *testing.T) {
	t.Parallel()

	var persisted map[string]int
	fb := &funcBackend{
		exportFn: func(b *Batch[string, int]) error {
			assert.Equal(t, StatusExporting, b.Op())
			persisted = b.Entries()
			return nil
		},
		importFn: func(b *Batch[string, int]) error {
			assert.Equal(t, StatusImporting, b.Op())
			b.PutAll(persisted)
			return nil
		},
	}
	s := newTestStore(t, fb)
	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("b", 2))

	assert.Equal(t, ResultOK, s.Export())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, persisted)

	s.Clear()
	assert.Equal(t, ResultOK, s.Import())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, s.Snapshot())
	assert.False(t, s.HasErrors())
}

func TestStoreHookFailures(t *testing.T) {
	t.Parallel()

	errDisk := errors.New("disk full")

	t.Run("err/whole_operation", func(t *testing.T) {
		t.Parallel()
		fail := true
		fb := &funcBackend{exportFn: func(b *Batch[string, int]) error {
			if fail {
				return errDisk
			}
			return nil
		}}
		s := newTestStore(t, fb)

		assert.Equal(t, ResultError, s.Export())
		assert.Equal(t, StatusIdle, s.Status())
		require.True(t, s.HasErrors())
		errs := s.Errors()
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], errDisk)
		assert.EqualError(t, errs[0], "export (/data): disk full")
		assert.ErrorIs(t, s.Err(), errDisk)

		// The sink is cleared by the next attempt.
		fail = false
		assert.Equal(t, ResultOK, s.Export())
		assert.False(t, s.HasErrors())
		assert.NoError(t, s.Err())
	})

	t.Run("err/panic", func(t *testing.T) {
		t.Parallel()
		fb := &funcBackend{importFn: func(b *Batch[string, int]) error {
			panic("corrupt header")
		}}
		s := newTestStore(t, fb)

		assert.Equal(t, ResultError, s.Import())
		assert.Equal(t, StatusIdle, s.Status())
		require.Len(t, s.Errors(), 1)
		assert.EqualError(t, s.Errors()[0], "import (/data): panic: corrupt header")
	})

	t.Run("ok/partial", func(t *testing.T) {
		t.Parallel()
		fb := &funcBackend{exportFn: func(b *Batch[string, int]) error {
			for k := range b.Entries() {
				if k == "bad" {
					b.Fail(&OpError{Op: b.Op(), Key: k, Path: "/data/bad.vnc", Err: errDisk})
				}
			}
			b.Fail(nil)
			return nil
		}}
		s := newTestStore(t, fb)
		require.NoError(t, s.Set("good", 1))
		require.NoError(t, s.Set("bad", 2))

		assert.Equal(t, ResultOK, s.Export())
		require.Len(t, s.Errors(), 1)
		assert.EqualError(t, s.Errors()[0], "export entry 'bad' (/data/bad.vnc): disk full")
	})

	t.Run("ok/stale_failure_discarded", func(t *testing.T) {
		t.Parallel()
		var stale *Batch[string, int]
		fb := &funcBackend{exportFn: func(b *Batch[string, int]) error {
			if stale == nil {
				stale = b
			}
			return nil
		}}
		s := newTestStore(t, fb)

		assert.Equal(t, ResultOK, s.Export())
		stale.Fail(errDisk)
		assert.Len(t, s.Errors(), 1)

		// An import doesn't start a new export generation.
		assert.Equal(t, ResultOK, s.Import())
		stale.Fail(errDisk)
		assert.Len(t, s.Errors(), 2)

		assert.Equal(t, ResultOK, s.Export())
		stale.Fail(errDisk)
		assert.False(t, s.HasErrors())
	})

	t.Run("ok/cleared_per_kind", func(t *testing.T) {
		t.Parallel()
		errCorrupt := errors.New("corrupt")
		failExport, failImport := true, true
		fb := &funcBackend{
			exportFn: func(b *Batch[string, int]) error {
				if failExport {
					b.Fail(&OpError{Op: b.Op(), Key: "bad", Err: errDisk})
				}
				return nil
			},
			importFn: func(b *Batch[string, int]) error {
				if failImport {
					return errCorrupt
				}
				return nil
			},
		}
		s := newTestStore(t, fb)

		assert.Equal(t, ResultOK, s.Export())
		assert.Equal(t, ResultError, s.Import())

		errs := s.Errors()
		require.Len(t, errs, 2)
		assert.EqualError(t, errs[0], "export entry 'bad': disk full")
		assert.EqualError(t, errs[1], "import (/data): corrupt")
		require.Len(t, s.ErrorsOf(StatusExporting), 1)
		require.Len(t, s.ErrorsOf(StatusImporting), 1)
		assert.ErrorIs(t, s.ErrorsOf(StatusImporting)[0], errCorrupt)
		assert.Empty(t, s.ErrorsOf(StatusCopying))

		failImport = false
		assert.Equal(t, ResultOK, s.Import())
		errs = s.Errors()
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], errDisk)

		// A busy attempt doesn't clear anything.
		started, release := make(chan struct{}), make(chan struct{})
		fb.importFn = func(b *Batch[string, int]) error {
			close(started)
			<-release
			return nil
		}
		done := make(chan Result)
		go func() { done <- s.Import() }()
		<-started
		assert.Equal(t, ResultBusy, s.Export())
		close(release)
		assert.Equal(t, ResultOK, <-done)
		assert.Len(t, s.ErrorsOf(StatusExporting), 1)

		failExport = false
		assert.Equal(t, ResultOK, s.Export())
		assert.False(t, s.HasErrors())
	})
}

func TestCatch(t *testing.T) {
	t.Parallel()

	errFail := errors.New("fail")
	assert.NoError(t, Catch(func() error { return nil }))
	assert.ErrorIs(t, Catch(func() error { return errFail }), errFail)
	assert.EqualError(t, Catch(func() error { panic("boom") }), "panic: boom")
	assert.EqualError(t, Catch(func() error { panic(errFail) }), "panic: fail")
}

func TestStatusVerb(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "import", StatusImporting.Verb())
	assert.Equal(t, "export", StatusExporting.Verb())
	assert.Equal(t, "copy", StatusCopying.Verb())
	assert.Equal(t, "idle", StatusIdle.Verb())
}

func TestStoreBusy(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	fb := &funcBackend{exportFn: func(b *Batch[string, int]) error {
		close(started)
		<-release
		return nil
	}}
	s := newTestStore(t, fb)
	other := newTestStore(t, &funcBackend{})

	resCh := make(chan Result)
	go func() { resCh <- s.Export() }()
	<-started

	assert.Equal(t, StatusExporting, s.Status())
	assert.Equal(t, ResultBusy, s.Export())
	assert.Equal(t, ResultBusy, s.Import())
	assert.Equal(t, ResultBusy, s.CopyTo(other))
	assert.Equal(t, ResultBusy, s.CopyFrom(other))

	// Mutators aren't blocked by bulk operations.
	require.NoError(t, s.Set("a", 1))

	close(release)
	assert.Equal(t, ResultOK, <-resCh)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestStoreMutualExclusion(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32
	hook := func(b *Batch[string, int]) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	s := newTestStore(t, &funcBackend{importFn: hook, exportFn: hook})
	peer := newTestStore(t, &funcBackend{})

	var (
		wg      sync.WaitGroup
		mx      sync.Mutex
		results = map[Result]int{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var res Result
			switch i % 3 {
			case 0:
				res = s.Import()
			case 1:
				res = s.Export()
			default:
				res = s.CopyTo(peer)
			}
			mx.Lock()
			results[res]++
			mx.Unlock()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.Greater(t, results[ResultOK], 0)
	assert.Equal(t, 50, results[ResultOK]+results[ResultBusy])
	assert.Equal(t, StatusIdle, s.Status())
}

func TestStoreCopy(t *testing.T) {
	t.Parallel()

	t.Run("ok/to_from", func(t *testing.T) {
		t.Parallel()
		type call struct {
			dir CopyDirection
			n   int
		}
		var calls []call
		hook := func(dir CopyDirection, n int) error {
			calls = append(calls, call{dir, n})
			return nil
		}
		src := newTestStore(t, &funcBackend{}, WithCopyHook(hook))
		dst := newTestStore(t, &funcBackend{})
		require.NoError(t, src.Set("a", 1))
		require.NoError(t, src.Set("b", 2))
		require.NoError(t, dst.Set("b", 20))
		require.NoError(t, dst.Set("c", 30))

		assert.Equal(t, ResultOK, src.CopyTo(dst))
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 30}, dst.Snapshot())
		assert.Equal(t, StatusIdle, src.Status())

		require.NoError(t, dst.Set("d", 40))
		assert.Equal(t, ResultOK, src.CopyFrom(dst))
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 30, "d": 40}, src.Snapshot())

		assert.Equal(t, []call{{CopiedTo, 2}, {CopiedFrom, 4}}, calls)
	})

	t.Run("ok/same_store", func(t *testing.T) {
		t.Parallel()
		called := false
		s := newTestStore(t, &funcBackend{}, WithCopyHook(func(CopyDirection, int) error {
			called = true
			return nil
		}))
		assert.Equal(t, ResultOK, s.CopyTo(s))
		assert.Equal(t, ResultOK, s.CopyFrom(s))
		assert.False(t, called)
	})

	t.Run("err/hook", func(t *testing.T) {
		t.Parallel()
		errHook := errors.New("registry out of sync")
		s := newTestStore(t, &funcBackend{}, WithCopyHook(func(CopyDirection, int) error {
			return errHook
		}))
		other := newTestStore(t, &funcBackend{})
		assert.Equal(t, ResultError, s.CopyTo(other))
		require.Len(t, s.Errors(), 1)
		assert.ErrorIs(t, s.Errors()[0], errHook)
		assert.Equal(t, StatusIdle, s.Status())
	})

	t.Run("err/disposed_peer", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t, &funcBackend{})
		other := newTestStore(t, &funcBackend{})
		require.NoError(t, other.Close())

		assert.Equal(t, ResultError, s.CopyTo(other))
		assert.ErrorIs(t, s.Err(), ErrDisposed)
		assert.Equal(t, ResultError, s.CopyFrom(other))
		assert.ErrorIs(t, s.Err(), ErrDisposed)
		assert.Equal(t, ResultError, s.CopyTo(nil))
	})
}

func TestStoreClose(t *testing.T) {
	t.Parallel()

	fb := &funcBackend{exportFn: func(b *Batch[string, int]) error {
		return errors.New("fail")
	}}
	s := newTestStore(t, fb)
	require.NoError(t, s.Set("a", 1))
	assert.Equal(t, ResultError, s.Export())
	require.True(t, s.HasErrors())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.EqualValues(t, 1, fb.closed.Load())

	assert.Equal(t, StatusDisposed, s.Status())
	assert.False(t, s.HasErrors())
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Snapshot())

	assert.Equal(t, ResultNull, s.Import())
	assert.Equal(t, ResultNull, s.Export())
	assert.Equal(t, ResultNull, s.CopyTo(s))
	assert.Equal(t, ResultNull, s.CopyFrom(newTestStore(t, &funcBackend{})))

	assert.ErrorIs(t, s.Set("a", 1), ErrDisposed)
	assert.ErrorIs(t, s.Add("a", 1), ErrDisposed)
	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.False(t, s.Remove("a"))
	s.Clear()
	assert.Equal(t, StatusDisposed, s.Status())
}

func TestStoreCloseDuringOperation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	fb := &funcBackend{importFn: func(b *Batch[string, int]) error {
		close(started)
		<-release
		b.Put("late", 1)
		b.Fail(errors.New("late failure"))
		return nil
	}}
	s := newTestStore(t, fb)

	resCh := make(chan Result)
	go func() { resCh <- s.Import() }()
	<-started

	require.NoError(t, s.Close())
	close(release)

	assert.Equal(t, ResultOK, <-resCh)
	assert.Equal(t, StatusDisposed, s.Status())
	assert.False(t, s.HasErrors())
	assert.False(t, s.ContainsKey("late"))
}
