package storage

import (
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"

	"board-service/domain"
)

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"b1","RowKey":"t1","ColumnId":"c1","Title":"Write docs","Tags":"[\"docs\",\"q4\"]","Position":"a0V","CreatedAt":"2025-11-08T12:00:00Z","UpdatedAt":"2025-11-08T12:30:00.5Z"}`)
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	task, err := ent.task()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "t1" || task.BoardID != "b1" || task.ColumnID != "c1" || task.Position != "a0V" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if !reflect.DeepEqual(task.Tags, []string{"docs", "q4"}) {
		t.Fatalf("unexpected tags: %v", task.Tags)
	}
	if task.Description != nil {
		t.Fatalf("expected no description")
	}
	want := time.Date(2025, 11, 8, 12, 30, 0, 500000000, time.UTC)
	if !task.UpdatedAt.Equal(want) {
		t.Fatalf("unexpected updatedAt: %v", task.UpdatedAt)
	}
}

func TestEncodeTaskEntityKeys(t *testing.T) {
	desc := "details"
	ent, err := toTaskEntity(domain.Task{ID: "t1", BoardID: "b1", ColumnID: "c1", Title: "x", Description: &desc, Position: "a0"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["PartitionKey"] != "b1" || raw["RowKey"] != "t1" || raw["ColumnId"] != "c1" {
		t.Fatalf("unexpected keys: %v", raw)
	}
	if raw["Tags"] != "[]" || raw["Description"] != "details" {
		t.Fatalf("unexpected properties: %v", raw)
	}
}

func TestBoardEntityOmitsMissingDescription(t *testing.T) {
	data, err := sonic.Marshal(toBoardEntity(domain.Board{ID: "b1", Name: "Roadmap", OwnerID: "u1"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["Description"]; ok {
		t.Fatalf("description should be omitted: %s", data)
	}
	if raw["PartitionKey"] != "b1" || raw["RowKey"] != "b1" {
		t.Fatalf("unexpected keys: %s", data)
	}
}

func TestDecodeMemberEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"b1","RowKey":"u1","Role":"moderator","CreatedAt":"2025-11-08T12:00:00Z","UpdatedAt":"2025-11-08T12:00:00Z"}`)
	var ent memberEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := ent.member()
	if m.BoardID != "b1" || m.UserID != "u1" || m.Role != domain.RoleModerator {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestQuoteEscapesLiterals(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"b1", "'b1'"},
		{"o'brien", "'o''brien'"},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Fatalf("quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestIsStatus(t *testing.T) {
	err := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	if !isStatus(err, http.StatusNotFound) {
		t.Fatalf("expected not found")
	}
	if isStatus(errors.New("boom"), http.StatusNotFound) {
		t.Fatalf("plain errors carry no status")
	}
}

func TestTableNamesAll(t *testing.T) {
	n := TableNames{Boards: "Boards", Members: "Members", Columns: "Columns", Tasks: "Tasks"}
	if got := n.All(); !reflect.DeepEqual(got, []string{"Boards", "Members", "Columns", "Tasks"}) {
		t.Fatalf("unexpected names: %v", got)
	}
}
