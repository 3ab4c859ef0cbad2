package playback

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhoume/jukebox/internal/backend"
	"github.com/lhoume/jukebox/internal/queue"
	"github.com/lhoume/jukebox/internal/resolver"
)

const testTransitionDelay = 10 * time.Millisecond

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *queue.Queue, *backend.Mock, *resolver.Mock) {
	t.Helper()
	q := queue.New(func(requesterID string) bool { return requesterID == "vip" })
	b := backend.NewMock()
	r := resolver.NewMock()
	o := New(q, b, r, testTransitionDelay, testLogger())
	t.Cleanup(func() { _ = o.Close() })
	return o, q, b, r
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func tempMedia(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func fileItem(path string) queue.Item {
	return queue.Item{
		Kind:           queue.KindFile,
		Content:        path,
		Title:          filepath.Base(path),
		DownloadStatus: queue.StatusReady,
	}
}

func TestEnqueueStartsPlayback(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	path := tempMedia(t, "a.mp3")
	if _, ok := o.Enqueue(fileItem(path)); !ok {
		t.Fatal("enqueue rejected")
	}

	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	calls := b.PlayCalls()
	if len(calls) != 1 {
		t.Fatalf("play calls = %d, want 1", len(calls))
	}
	if calls[0].Path != path {
		t.Errorf("played %q, want %q", calls[0].Path, path)
	}
	if calls[0].Offset != 0 {
		t.Errorf("offset = %v, want 0", calls[0].Offset)
	}
}

func TestNaturalFinishAdvancesToNext(t *testing.T) {
	o, q, b, _ := newTestOrchestrator(t)
	o.Run()

	pathA := tempMedia(t, "a.mp3")
	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(pathA))
	o.Enqueue(fileItem(pathB))

	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "first play")
	b.FinishNatural()
	waitFor(t, func() bool { return len(b.PlayCalls()) == 2 }, "second play")

	calls := b.PlayCalls()
	if calls[0].Path != pathA || calls[1].Path != pathB {
		t.Errorf("play order = %q,%q, want %q,%q", calls[0].Path, calls[1].Path, pathA, pathB)
	}
	if got := o.Status().SongsPlayed; got != 1 {
		t.Errorf("songsPlayed = %d, want 1", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue len = %d, want 0", q.Len())
	}
}

func TestSkipDoesNotCountAsPlayed(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.Run()

	o.Enqueue(fileItem(tempMedia(t, "a.mp3")))
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	if err := o.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	waitFor(t, func() bool { return o.Status().Phase == PhaseIdle }, "idle after skip")

	if got := o.Status().SongsPlayed; got != 0 {
		t.Errorf("songsPlayed = %d, want 0", got)
	}
}

func TestSkipWithNothingPlaying(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.Run()

	if err := o.Skip(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("skip error = %v, want ErrNothingPlaying", err)
	}
}

func TestExactlyOnceFinish(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	pathA := tempMedia(t, "a.mp3")
	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(pathA))
	o.Enqueue(fileItem(pathB))
	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "first play")

	// Natural end and a racing skip signal for the same generation: only
	// the first may act.
	gen := b.CurrentGen()
	b.FinishNatural()
	b.Emit(backend.Event{Kind: backend.EventFinished, Gen: gen, Reason: backend.ReasonSkipped})

	waitFor(t, func() bool { return len(b.PlayCalls()) == 2 }, "second play")
	time.Sleep(5 * testTransitionDelay)

	if got := len(b.PlayCalls()); got != 2 {
		t.Errorf("play calls = %d, want 2 (duplicate completion advanced twice)", got)
	}
	if got := o.Status().SongsPlayed; got != 1 {
		t.Errorf("songsPlayed = %d, want 1", got)
	}
}

func TestStaleGenerationEventIgnored(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	o.Enqueue(fileItem(tempMedia(t, "a.mp3")))
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	b.Emit(backend.Event{Kind: backend.EventFinished, Gen: 999, Reason: backend.ReasonNatural})
	time.Sleep(5 * testTransitionDelay)

	if got := o.Status().Phase; got != PhasePlaying {
		t.Errorf("phase = %v, want Playing (stale event acted on)", got)
	}
}

func TestPauseResume(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	o.Enqueue(fileItem(tempMedia(t, "a.mp3")))
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	if err := o.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := o.Status().Phase; got != PhasePaused {
		t.Fatalf("phase after pause = %v, want Paused", got)
	}
	if b.PauseCalls() != 1 {
		t.Errorf("pause calls = %d, want 1", b.PauseCalls())
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := o.Status().Phase; got != PhasePlaying {
		t.Errorf("phase after resume = %v, want Playing", got)
	}
	if b.ResumeCalls() != 1 {
		t.Errorf("resume calls = %d, want 1", b.ResumeCalls())
	}
}

func TestPauseWhenIdle(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.Run()

	if err := o.Pause(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("pause error = %v, want ErrNothingPlaying", err)
	}
	if err := o.Resume(); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("resume error = %v, want ErrNothingPlaying", err)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	item := fileItem(tempMedia(t, "a.mp3"))
	item.Duration = 10 * time.Second
	o.Enqueue(item)
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	effective, err := o.Seek(30 * time.Second)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if effective != 10*time.Second {
		t.Errorf("effective = %v, want 10s", effective)
	}
	if calls := b.SeekCalls(); len(calls) != 1 || calls[0] != 10*time.Second {
		t.Errorf("seek calls = %v, want [10s]", calls)
	}

	effective, err = o.Seek(-5 * time.Second)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}
	if effective != 0 {
		t.Errorf("effective = %v, want 0", effective)
	}
}

func TestSeekWhilePausedResumes(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()

	item := fileItem(tempMedia(t, "a.mp3"))
	item.Duration = time.Minute
	o.Enqueue(item)
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	if err := o.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := o.Seek(10 * time.Second); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if got := o.Status().Phase; got != PhasePlaying {
		t.Errorf("phase after seek = %v, want Playing", got)
	}
	if b.ResumeCalls() != 1 {
		t.Errorf("resume calls = %d, want 1", b.ResumeCalls())
	}
}

func TestResolveSuccessPlaysDownloadedFile(t *testing.T) {
	o, _, b, r := newTestOrchestrator(t)

	path := tempMedia(t, "resolved.mp3")
	r.Results["https://example.com/watch?v=1"] = &resolver.Result{
		FilePath: path,
		Title:    "Resolved Song",
		Artist:   "Somebody",
		Duration: 3 * time.Minute,
	}
	o.Run()

	o.Enqueue(queue.Item{Kind: queue.KindURL, Content: "https://example.com/watch?v=1"})
	waitFor(t, func() bool { return o.Status().Phase == PhasePlaying }, "playing phase")

	calls := b.PlayCalls()
	if len(calls) != 1 || calls[0].Path != path {
		t.Fatalf("play calls = %v, want one call for %q", calls, path)
	}
	st := o.Status()
	if st.Current == nil || st.Current.Item.Title != "Resolved Song" {
		t.Errorf("current title = %+v, want Resolved Song", st.Current)
	}
	if st.Current.Item.SourceURL != "https://example.com/watch?v=1" {
		t.Errorf("source url = %q, want original url", st.Current.Item.SourceURL)
	}
}

func TestResolveFailureConsumesItemAndAdvances(t *testing.T) {
	o, q, b, r := newTestOrchestrator(t)

	r.Errs["https://example.com/bad"] = resolver.ErrNotFound
	pathB := tempMedia(t, "b.mp3")
	o.Run()
	sub := o.Subscribe()

	o.Enqueue(queue.Item{Kind: queue.KindURL, Content: "https://example.com/bad"})
	o.Enqueue(fileItem(pathB))

	var ev ErrorEvent
	select {
	case ev = <-sub.Errors:
	case <-time.After(2 * time.Second):
		t.Fatal("no error event")
	}
	if !errors.Is(ev.Err, resolver.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", ev.Err)
	}

	// The failed item is consumed, not retried; playback moves on.
	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "next item playing")
	if b.PlayCalls()[0].Path != pathB {
		t.Errorf("played %q, want %q", b.PlayCalls()[0].Path, pathB)
	}
	for _, it := range q.Snapshot() {
		if it.Content == "https://example.com/bad" {
			t.Error("failed item still queued")
		}
	}
}

func TestMissingFileConsumedWithError(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()
	sub := o.Subscribe()

	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(filepath.Join(t.TempDir(), "gone.mp3")))
	o.Enqueue(fileItem(pathB))

	select {
	case ev := <-sub.Errors:
		if ev.Op != "play" {
			t.Errorf("op = %q, want play", ev.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error event")
	}

	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "next item playing")
	if b.PlayCalls()[0].Path != pathB {
		t.Errorf("played %q, want %q", b.PlayCalls()[0].Path, pathB)
	}
}

func TestSkipDuringResolutionAppliesAfterStart(t *testing.T) {
	o, _, b, r := newTestOrchestrator(t)

	path := tempMedia(t, "a.mp3")
	r.Results["https://example.com/slow"] = &resolver.Result{FilePath: path}
	r.Delay = 50 * time.Millisecond
	o.Run()

	o.Enqueue(queue.Item{Kind: queue.KindURL, Content: "https://example.com/slow"})
	waitFor(t, func() bool { return len(r.Calls()) == 1 }, "resolution started")

	if err := o.Skip(); err != nil {
		t.Fatalf("skip during resolution: %v", err)
	}

	// The skip lands once playback starts, then the empty queue goes idle.
	waitFor(t, func() bool { return o.Status().Phase == PhaseIdle }, "idle after deferred skip")
	if len(b.PlayCalls()) != 1 {
		t.Errorf("play calls = %d, want 1", len(b.PlayCalls()))
	}
	if b.StopCalls() == 0 {
		t.Error("deferred skip never stopped the backend")
	}
}

func TestPauseDuringResolutionAppliesAfterStart(t *testing.T) {
	o, _, b, r := newTestOrchestrator(t)

	path := tempMedia(t, "a.mp3")
	r.Results["https://example.com/slow"] = &resolver.Result{FilePath: path}
	r.Delay = 50 * time.Millisecond
	o.Run()

	o.Enqueue(queue.Item{Kind: queue.KindURL, Content: "https://example.com/slow"})
	waitFor(t, func() bool { return len(r.Calls()) == 1 }, "resolution started")

	if err := o.Pause(); err != nil {
		t.Fatalf("pause during resolution: %v", err)
	}

	waitFor(t, func() bool { return o.Status().Phase == PhasePaused }, "paused after deferred pause")
	if b.PauseCalls() != 1 {
		t.Errorf("pause calls = %d, want 1", b.PauseCalls())
	}
}

func TestRepeatOneRestartsSameFile(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()
	o.SetRepeat(RepeatOne)

	path := tempMedia(t, "a.mp3")
	o.Enqueue(fileItem(path))
	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "first play")

	b.FinishNatural()
	waitFor(t, func() bool { return len(b.PlayCalls()) == 2 }, "restart")

	calls := b.PlayCalls()
	if calls[1].Path != path {
		t.Errorf("restarted %q, want %q", calls[1].Path, path)
	}
	if calls[1].Offset != 0 {
		t.Errorf("restart offset = %v, want 0", calls[1].Offset)
	}
	if got := o.Status().SongsPlayed; got != 0 {
		t.Errorf("songsPlayed = %d, want 0 (repeat-one must not count)", got)
	}
}

func TestRepeatOneSkipAdvances(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()
	o.SetRepeat(RepeatOne)

	pathA := tempMedia(t, "a.mp3")
	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(pathA))
	o.Enqueue(fileItem(pathB))
	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "first play")

	if err := o.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	waitFor(t, func() bool { return len(b.PlayCalls()) == 2 }, "advance after skip")

	if b.PlayCalls()[1].Path != pathB {
		t.Errorf("played %q after skip, want %q", b.PlayCalls()[1].Path, pathB)
	}
}

func TestRepeatAllRepopulatesInOrder(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()
	o.SetRepeat(RepeatAll)

	pathA := tempMedia(t, "a.mp3")
	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(pathA))
	o.Enqueue(fileItem(pathB))

	for i := 1; i <= 3; i++ {
		waitFor(t, func() bool { return len(b.PlayCalls()) == i }, "play")
		b.FinishNatural()
	}
	waitFor(t, func() bool { return len(b.PlayCalls()) == 4 }, "second cycle continues")

	calls := b.PlayCalls()
	want := []string{pathA, pathB, pathA, pathB}
	for i, w := range want {
		if calls[i].Path != w {
			t.Errorf("play %d = %q, want %q", i, calls[i].Path, w)
		}
	}
}

func TestRepeatAllSkippedSongNotReplayed(t *testing.T) {
	o, q, b, _ := newTestOrchestrator(t)
	o.Run()
	o.SetRepeat(RepeatAll)

	pathA := tempMedia(t, "a.mp3")
	pathB := tempMedia(t, "b.mp3")
	o.Enqueue(fileItem(pathA))
	o.Enqueue(fileItem(pathB))

	waitFor(t, func() bool { return len(b.PlayCalls()) == 1 }, "first play")
	if err := o.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	waitFor(t, func() bool { return len(b.PlayCalls()) == 2 }, "second play")
	b.FinishNatural()

	// Only B played through, so only B comes back in the next cycle.
	waitFor(t, func() bool { return len(b.PlayCalls()) == 3 }, "replay cycle")
	if got := b.PlayCalls()[2].Path; got != pathB {
		t.Errorf("replayed %q, want %q (skipped song must not return)", got, pathB)
	}
	if q.Len() != 0 {
		t.Errorf("queue len = %d, want 0", q.Len())
	}
}

func TestModeChangesPersistAndNotify(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	var snapshots []StateSnapshot
	o.SetStateSink(func(s StateSnapshot) { snapshots = append(snapshots, s) })
	o.Run()
	sub := o.Subscribe()

	o.SetRepeat(RepeatAll)
	o.SetShuffle(true)
	o.SetShuffle(true) // no-op, must not notify again

	select {
	case ev := <-sub.ModeChanged:
		if ev.Repeat != RepeatAll {
			t.Errorf("repeat = %v, want All", ev.Repeat)
		}
	case <-time.After(time.Second):
		t.Fatal("no mode event")
	}

	st := o.Status()
	if st.Repeat != RepeatAll || !st.Shuffle {
		t.Errorf("status = repeat %v shuffle %v, want All/true", st.Repeat, st.Shuffle)
	}
	if len(snapshots) != 2 {
		t.Errorf("state sink called %d times, want 2", len(snapshots))
	}
}

func TestRestoreAppliesSnapshot(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)
	o.Restore(StateSnapshot{Repeat: RepeatAll, Shuffle: true, SongsPlayed: 42})
	o.Run()

	st := o.Status()
	if st.Repeat != RepeatAll || !st.Shuffle || st.SongsPlayed != 42 {
		t.Errorf("status = %+v, want restored snapshot", st)
	}
}

func TestSongChangeEvents(t *testing.T) {
	o, _, b, _ := newTestOrchestrator(t)
	o.Run()
	sub := o.Subscribe()

	path := tempMedia(t, "a.mp3")
	o.Enqueue(fileItem(path))

	select {
	case ev := <-sub.SongChanged:
		if ev.Previous != nil {
			t.Errorf("previous = %+v, want nil", ev.Previous)
		}
		if ev.Current == nil || ev.Current.Content != path {
			t.Errorf("current = %+v, want %q", ev.Current, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no song-start event")
	}

	b.FinishNatural()
	select {
	case ev := <-sub.SongChanged:
		if ev.Current != nil {
			t.Errorf("current = %+v, want nil after last song", ev.Current)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no song-end event")
	}
}
