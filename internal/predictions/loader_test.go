package predictions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sheetBody = `{
  "range": "Sheet1!A1:F4",
  "majorDimension": "ROWS",
  "values": [
    ["match", "pick", "odds", "isfree", "status", "justification"],
    ["América vs Chivas", "Over 2.5", "2,50", "TRUE"],
    ["Pumas vs Tigres", "Empate", "3.10", "false", "lost", "Clásico cerrado"],
    ["Sin pick", "", "1.50", "true"]
  ]
}`

func newSheetServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v4/spreadsheets/sheet-id/values/Sheet1!A:F", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func source(base string) Source {
	return Source{BaseURL: base, SpreadsheetID: "sheet-id", Sheet: "Sheet1", Range: "A:F", APIKey: "test-key"}
}

func TestLoaderSuccess(t *testing.T) {
	srv, hits := newSheetServer(t, http.StatusOK, sheetBody)
	l := NewLoader(source(srv.URL))
	defer l.Close()

	got, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	snap := l.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.Notice)
	assert.Len(t, snap.Predictions, 2)
	assert.Equal(t, []string{"0"}, ids(l.Free()))
	assert.Equal(t, []string{"1"}, ids(l.Premium()))

	// every load goes back to the sheet
	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestLoaderHeaderOnlyRaisesInfoNotice(t *testing.T) {
	for name, body := range map[string]string{
		"header only": `{"values": [["match","pick","odds"]]}`,
		"no values":   `{"range": "Sheet1!A1:F1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := newSheetServer(t, http.StatusOK, body)

			var notices []notify.Notice
			l := NewLoader(source(srv.URL), WithNotifier(notify.Func(func(n notify.Notice) {
				notices = append(notices, n)
			})))
			defer l.Close()

			got, err := l.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, got)

			require.Len(t, notices, 1)
			assert.Equal(t, notify.Default, notices[0].Variant)
			assert.Equal(t, "Hoja de cálculo vacía o solo con encabezados", notices[0].Title)
		})
	}
}

func TestLoaderErrorResponse(t *testing.T) {
	srv, _ := newSheetServer(t, http.StatusForbidden,
		`{"error": {"code": 403, "message": "The caller does not have permission", "status": "PERMISSION_DENIED"}}`)
	l := NewLoader(source(srv.URL))
	defer l.Close()

	got, err := l.Load(context.Background())
	assert.Nil(t, got)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 403, fetchErr.StatusCode)

	snap := l.Snapshot()
	assert.Empty(t, snap.Predictions)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, notify.Destructive, snap.Notice.Variant)
	assert.Equal(t, "Error 403: The caller does not have permission", snap.Notice.Description)
}

func TestLoaderErrorWithoutBodyMessage(t *testing.T) {
	srv, _ := newSheetServer(t, http.StatusInternalServerError, `<html>oops</html>`)
	l := NewLoader(source(srv.URL))
	defer l.Close()

	_, err := l.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Error 500: "+defaultErrorMessage, err.Error())
}

func TestLoaderErrorClearsPreviousPicks(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sheetBody))
	}))
	defer srv.Close()

	l := NewLoader(source(srv.URL))
	defer l.Close()

	_, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, l.Predictions(), 2)

	fail.Store(true)
	_, err = l.Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, l.Predictions())
}

func TestLoaderDiscardsCancelledResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte(sheetBody))
	}))
	defer srv.Close()
	defer close(release)

	l := NewLoader(source(srv.URL))
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx)
		done <- err
	}()

	<-started
	assert.True(t, l.Loading())
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrDiscarded), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not return after cancel")
	}

	assert.Eventually(t, func() bool { return !l.Loading() }, 5*time.Second, 10*time.Millisecond)
	snap := l.Snapshot()
	assert.Empty(t, snap.Predictions)
	assert.Nil(t, snap.Notice, "a discarded response leaves no notice")
	assert.True(t, snap.LoadedAt.IsZero())
}

func TestLoaderCloseStopsInFlightLoad(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	l := NewLoader(source(srv.URL))

	done := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background())
		done <- err
	}()

	<-started
	l.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDiscarded)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not return after close")
	}

	_, err := l.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoaderSharesInFlightRead(t *testing.T) {
	release := make(chan struct{})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(sheetBody))
	}))
	defer srv.Close()

	l := NewLoader(source(srv.URL))
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.Load(context.Background())
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, 5*time.Second, 5*time.Millisecond)
	// give the other callers time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
