package domain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"board-service/ordering"
)

func TestColumnCreateAppendsToEnd(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	ctx := context.Background()

	first, err := f.columns.Create(ctx, "owner", CreateColumnInput{Name: "Todo", BoardID: "b1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Position != ordering.First() {
		t.Fatalf("first column position = %q, want %q", first.Position, ordering.First())
	}
	second, err := f.columns.Create(ctx, "mod", CreateColumnInput{Name: "Doing", BoardID: "b1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.Position <= first.Position {
		t.Fatalf("expected %q after %q", second.Position, first.Position)
	}

	ev, ok := f.bus.last()
	if !ok || ev.boardID != "b1" || ev.event.Type != ColumnCreated {
		t.Fatalf("unexpected event: %+v", ev)
	}
	data := ev.event.Data.(ColumnCreatedData)
	if data.ColumnID != second.ID || data.Position != second.Position || data.CreatedBy != "mod" {
		t.Fatalf("unexpected event data: %+v", data)
	}
}

func TestColumnCreateRequiresEditorRole(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")

	_, err := f.columns.Create(context.Background(), "member", CreateColumnInput{Name: "Todo", BoardID: "b1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if f.st.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", f.st.writeCount())
	}
	if len(f.bus.all()) != 0 {
		t.Fatalf("expected no events")
	}
}

func TestColumnCreateValidatesName(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")

	_, err := f.columns.Create(context.Background(), "owner", CreateColumnInput{Name: strings.Repeat("x", 101), BoardID: "b1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestColumnCreateUnknownBoard(t *testing.T) {
	f := newFixture()

	_, err := f.columns.Create(context.Background(), "owner", CreateColumnInput{Name: "Todo", BoardID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestColumnMoveLastToFront(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "a1")
	seedColumn(f.st, "b1", "c2", "a2")

	moved, err := f.columns.Move(context.Background(), "owner", "c2", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Position >= "a0" {
		t.Fatalf("expected key before a0, got %q", moved.Position)
	}
	if f.st.columns["c0"].Position != "a0" || f.st.columns["c1"].Position != "a1" {
		t.Fatalf("siblings were rewritten: %+v", f.st.columns)
	}

	ev, ok := f.bus.last()
	if !ok || ev.event.Type != ColumnMoved {
		t.Fatalf("expected columnMoved, got %+v", ev)
	}
	data := ev.event.Data.(ColumnMovedData)
	if data.OldPosition != 2 || data.NewPosition != 0 || data.MovedBy != "owner" {
		t.Fatalf("unexpected move data: %+v", data)
	}

	cols, err := f.columns.List(context.Background(), "member", "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{cols[0].ID, cols[1].ID, cols[2].ID}
	if strings.Join(got, ",") != "c2,c0,c1" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestColumnMoveToEndIsAllowed(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "a1")
	seedColumn(f.st, "b1", "c2", "a2")

	moved, err := f.columns.Move(context.Background(), "mod", "c0", 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Position <= "a2" {
		t.Fatalf("expected key after a2, got %q", moved.Position)
	}
}

func TestColumnMoveOutOfBounds(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "a1")
	seedColumn(f.st, "b1", "c2", "a2")

	_, err := f.columns.Move(context.Background(), "owner", "c0", 3)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if msg := MessageOf(err); msg != "target position is out of bounds (0 - 2)" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if f.st.writeCount() != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestColumnMoveSameIndexIsNoop(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "a1")

	col, err := f.columns.Move(context.Background(), "owner", "c1", 1)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if col.Position != "a1" {
		t.Fatalf("position changed: %q", col.Position)
	}
	if f.st.writeCount() != 0 || len(f.bus.all()) != 0 {
		t.Fatalf("expected no writes or events")
	}
}

func TestColumnMoveChecksRoleBeforeBounds(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")

	_, err := f.columns.Move(context.Background(), "member", "c0", 99)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestColumnMoveCorruptKeyIsInternal(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "not a key")
	seedColumn(f.st, "b1", "c2", "zz")

	_, err := f.columns.Move(context.Background(), "owner", "c0", 1)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if !errors.Is(err, ordering.ErrInvalidKey) {
		t.Fatalf("expected ordering cause, got %v", err)
	}
}

func TestColumnDeleteRemovesTasksOnly(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	seedColumn(f.st, "b1", "c1", "a1")
	seedColumn(f.st, "b1", "c2", "a2")
	seedTask(f.st, "b1", "c1", "t1", "a0")
	seedTask(f.st, "b1", "c2", "t2", "a0")

	if err := f.columns.Delete(context.Background(), "owner", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.st.columns["c1"]; ok {
		t.Fatalf("column not deleted")
	}
	if _, ok := f.st.tasks["t1"]; ok {
		t.Fatalf("column task not deleted")
	}
	if _, ok := f.st.tasks["t2"]; !ok {
		t.Fatalf("unrelated task deleted")
	}
	if f.st.columns["c0"].Position != "a0" || f.st.columns["c2"].Position != "a2" {
		t.Fatalf("siblings renumbered")
	}
	ev, _ := f.bus.last()
	if ev.event.Type != ColumnDeleted || ev.event.Data.(ColumnDeletedData).ColumnID != "c1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestColumnUpdateRenames(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")

	col, err := f.columns.Update(context.Background(), "mod", "c0", UpdateColumnInput{Name: "Done"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if col.Name != "Done" || col.Position != "a0" {
		t.Fatalf("unexpected column: %+v", col)
	}
	ev, _ := f.bus.last()
	if ev.event.Type != ColumnUpdated {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestColumnGetRequiresMembership(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")

	if _, err := f.columns.Get(context.Background(), "stranger", "c0"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.columns.Get(context.Background(), "member", "c0"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestConcurrentColumnCreatesGetDistinctKeys(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.columns.Create(ctx, "owner", CreateColumnInput{Name: "c", BoardID: "b1"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("create: %v", err)
	}

	seen := map[string]bool{}
	for _, c := range f.st.columns {
		if seen[c.Position] {
			t.Fatalf("duplicate position %q", c.Position)
		}
		seen[c.Position] = true
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 columns, got %d", len(seen))
	}
}

func TestColumnRenameDuringMovesKeepsMovedKeys(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "A", "a0")
	seedColumn(f.st, "b1", "B", "a1")
	seedColumn(f.st, "b1", "C", "a2")
	ctx := context.Background()

	// Reorder the board after the rename has read B but before it writes.
	f.st.onceAfterGet("B", func() {
		for _, m := range []struct {
			id     string
			target int
		}{{"B", 2}, {"C", 0}, {"C", 1}} {
			if _, err := f.columns.Move(ctx, "owner", m.id, m.target); err != nil {
				t.Errorf("move %s to %d: %v", m.id, m.target, err)
			}
		}
	})

	renamed, err := f.columns.Update(ctx, "owner", "B", UpdateColumnInput{Name: "Review"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Name != "Review" {
		t.Fatalf("unexpected column: %+v", renamed)
	}

	cols, err := f.columns.List(ctx, "owner", "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var order []string
	seen := map[string]string{}
	for _, c := range cols {
		if other, dup := seen[c.Position]; dup {
			t.Fatalf("columns %s and %s share key %q", other, c.ID, c.Position)
		}
		seen[c.Position] = c.ID
		order = append(order, c.ID)
	}
	if strings.Join(order, ",") != "A,C,B" {
		t.Fatalf("expected order A,C,B, got %v", order)
	}
	if f.st.columns["B"].Name != "Review" || f.st.columns["B"].Position != renamed.Position {
		t.Fatalf("rename lost or wrote a stale key: %+v", f.st.columns["B"])
	}
}

func TestColumnRenameOfDeletedColumn(t *testing.T) {
	f := newFixture()
	seedBoard(f.st, "b1")
	seedColumn(f.st, "b1", "c0", "a0")
	ctx := context.Background()

	f.st.onceAfterGet("c0", func() {
		if err := f.columns.Delete(ctx, "owner", "c0"); err != nil {
			t.Errorf("delete: %v", err)
		}
	})
	if _, err := f.columns.Update(ctx, "owner", "c0", UpdateColumnInput{Name: "Done"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := f.st.columns["c0"]; ok {
		t.Fatalf("deleted column was written back")
	}
}
