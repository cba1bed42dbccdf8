package sink

import (
	"os"
	"testing"
)

func TestSnapshotRendererWritesFile(t *testing.T) {
	dir := t.TempDir()
	r, err := NewSnapshotRenderer(4, 4, dir+"/snapshot.png")
	if err != nil {
		t.Fatalf("NewSnapshotRenderer: %v", err)
	}

	rgb := make([]byte, 4*4*3)
	if err := r.Render(rgb); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if _, err := os.Stat(dir + "/snapshot.png"); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
}

func TestSnapshotRendererRejectsWrongSizedBuffer(t *testing.T) {
	dir := t.TempDir()
	r, err := NewSnapshotRenderer(4, 4, dir+"/snapshot.png")
	if err != nil {
		t.Fatalf("NewSnapshotRenderer: %v", err)
	}

	if err := r.Render(make([]byte, 10)); err == nil {
		t.Fatal("expected error rendering wrong-sized buffer")
	}
}
