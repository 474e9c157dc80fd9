package state

import (
	"testing"

	"bikeweather/internal/fsm"
)

func TestContainerReplaceLifecycle(t *testing.T) {
	t.Parallel()

	container := NewContainer(fsm.Initial())
	current, rev := container.Snapshot()
	if current.Kind != fsm.KindInitial || rev == 0 {
		t.Fatalf("unexpected initial snapshot %+v rev=%d", current, rev)
	}

	next := fsm.State{Kind: fsm.KindReady, Generation: 1}
	rev2, err := container.Replace(rev, next)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if rev2 == rev {
		t.Fatalf("expected revision to change")
	}
	loaded, loadedRev := container.Snapshot()
	if loaded.Kind != fsm.KindReady || loadedRev != rev2 {
		t.Fatalf("unexpected snapshot %+v rev=%d", loaded, loadedRev)
	}

	if _, err := container.Replace(rev, fsm.Initial()); err != ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestContainerSubscribeDeliversUpdates(t *testing.T) {
	t.Parallel()

	container := NewContainer(fsm.Initial())
	updates, cancel := container.Subscribe(4)
	defer cancel()

	_, rev := container.Snapshot()
	if _, err := container.Replace(rev, fsm.State{Kind: fsm.KindReady, Generation: 1}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	update := <-updates
	if update.Previous.Kind != fsm.KindInitial || update.Current.Kind != fsm.KindReady || update.Revision != rev+1 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestContainerSlowSubscriberKeepsLatest(t *testing.T) {
	t.Parallel()

	container := NewContainer(fsm.Initial())
	updates, cancel := container.Subscribe(1)
	defer cancel()

	kinds := []fsm.Kind{fsm.KindReady, fsm.KindPermissionGranted, fsm.KindLocationKnown}
	for i, kind := range kinds {
		_, rev := container.Snapshot()
		if _, err := container.Replace(rev, fsm.State{Kind: kind, Generation: uint64(i + 1)}); err != nil {
			t.Fatalf("replace %s: %v", kind, err)
		}
	}

	update := <-updates
	if update.Current.Kind != fsm.KindLocationKnown {
		t.Fatalf("expected latest update, got %s", update.Current.Kind)
	}
	select {
	case extra := <-updates:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestContainerCancelClosesChannel(t *testing.T) {
	t.Parallel()

	container := NewContainer(fsm.Initial())
	updates, cancel := container.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Fatalf("expected closed channel")
	}
	_, rev := container.Snapshot()
	if _, err := container.Replace(rev, fsm.State{Kind: fsm.KindReady}); err != nil {
		t.Fatalf("replace after cancel: %v", err)
	}
}
