package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attendancehub/internal/testutil"
	"attendancehub/pkg/interfaces"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	frames []string
	active int
	maxRun int
	got    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{got: make(chan struct{}, 2000)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) {
	d.mu.Lock()
	d.active++
	if d.active > d.maxRun {
		d.maxRun = d.active
	}
	d.frames = append(d.frames, string(data))
	d.mu.Unlock()

	time.Sleep(time.Millisecond)

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	d.got <- struct{}{}
}

func waitN(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-deadline:
			t.Fatalf("only %d of %d items processed", i, n)
		}
	}
}

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(newRecordingDispatcher())
	ctx := context.Background()

	if err := hub.Start(ctx); err != nil {
		t.Errorf("Expected no error starting hub, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("Expected no error stopping hub, got %v", err)
	}
	if err := hub.Stop(); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubStopped {
		t.Errorf("Expected ErrHubStopped on restart, got %v", err)
	}
}

func TestHub_RejectsWorkWhenNotRunning(t *testing.T) {
	dispatcher := newRecordingDispatcher()
	hub := NewHub(dispatcher)

	if err := hub.Execute("noop", func(context.Context) {}); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}

	hub.Dispatch(context.Background(), testutil.NewFakeConn(), []byte("x"))
	if len(dispatcher.frames) != 0 {
		t.Error("frames must not be dispatched before Start")
	}
}

func TestHub_DispatchesFramesInOrder(t *testing.T) {
	dispatcher := newRecordingDispatcher()
	hub := NewHub(dispatcher)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	conn := testutil.NewFakeConn()
	for _, f := range []string{"a", "b", "c"} {
		hub.Dispatch(context.Background(), conn, []byte(f))
	}
	waitN(t, dispatcher.got, 3)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.frames) != 3 || dispatcher.frames[0] != "a" || dispatcher.frames[2] != "c" {
		t.Errorf("unexpected frame order %v", dispatcher.frames)
	}
}

func TestHub_SerializesFramesAndTasks(t *testing.T) {
	dispatcher := newRecordingDispatcher()
	hub := NewHub(dispatcher)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	taskDone := make(chan struct{}, 100)
	const producers, perProducer = 5, 10

	var wg sync.WaitGroup
	wg.Add(producers * 2)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			conn := testutil.NewFakeConn()
			for i := 0; i < perProducer; i++ {
				hub.Dispatch(context.Background(), conn, []byte("frame"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				err := hub.Execute("task", func(context.Context) {
					dispatcher.mu.Lock()
					dispatcher.active++
					if dispatcher.active > dispatcher.maxRun {
						dispatcher.maxRun = dispatcher.active
					}
					dispatcher.active--
					dispatcher.mu.Unlock()
					taskDone <- struct{}{}
				})
				if err != nil {
					t.Errorf("Execute failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	waitN(t, dispatcher.got, producers*perProducer)
	waitN(t, taskDone, producers*perProducer)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if dispatcher.maxRun != 1 {
		t.Errorf("expected strictly sequential execution, saw %d concurrent items", dispatcher.maxRun)
	}
}

func TestHub_RecoversFromPanickingTask(t *testing.T) {
	hub := NewHub(newRecordingDispatcher())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	ran := make(chan struct{}, 1)
	_ = hub.Execute("boom", func(context.Context) { panic("boom") })
	_ = hub.Execute("after", func(context.Context) { ran <- struct{}{} })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("hub should keep running after a panicking task")
	}
}

func TestHub_TaskChannelFull(t *testing.T) {
	hub := NewHub(newRecordingDispatcher())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	_ = hub.Execute("block", func(context.Context) {
		close(started)
		<-release
	})
	<-started
	defer close(release)

	var err error
	for i := 0; i <= taskBuffer; i++ {
		if err = hub.Execute("fill", func(context.Context) {}); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrTaskChannelFull) {
		t.Errorf("Expected ErrTaskChannelFull, got %v", err)
	}
}

func TestHub_StopsOnContextCancel(t *testing.T) {
	hub := NewHub(newRecordingDispatcher())
	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Running() {
		t.Error("hub should stop when its context is cancelled")
	}
}
