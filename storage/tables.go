package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-service/domain"
)

// TableNames names the tables backing each record kind.
type TableNames struct {
	Boards  string `yaml:"boards"`
	Members string `yaml:"members"`
	Columns string `yaml:"columns"`
	Tasks   string `yaml:"tasks"`
}

// All returns the configured names in a stable order.
func (n TableNames) All() []string {
	return []string{n.Boards, n.Members, n.Columns, n.Tasks}
}

// Tables stores boards in Azure Table Storage. Every record is partitioned by
// its board so a board's children can be listed with a single partition scan.
type Tables struct {
	svc     *aztables.ServiceClient
	names   TableNames
	boards  *aztables.Client
	members *aztables.Client
	columns *aztables.Client
	tasks   *aztables.Client
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr string, names TableNames) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		svc:     svc,
		names:   names,
		boards:  svc.NewClient(names.Boards),
		members: svc.NewClient(names.Members),
		columns: svc.NewClient(names.Columns),
		tasks:   svc.NewClient(names.Tasks),
	}, nil
}

// CreateTables provisions every table, ignoring ones that already exist.
func (s *Tables) CreateTables(ctx context.Context) error {
	for _, name := range s.names.All() {
		if name == "" {
			continue
		}
		if _, err := s.svc.NewClient(name).CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return fmt.Errorf("create table %s: %w", name, err)
			}
		}
	}
	return nil
}

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type boardEntity struct {
	entity
	Name        string  `json:"Name"`
	Description *string `json:"Description,omitempty"`
	OwnerID     string  `json:"OwnerId"`
	CreatedAt   string  `json:"CreatedAt"`
	UpdatedAt   string  `json:"UpdatedAt"`
}

type memberEntity struct {
	entity
	Role      string `json:"Role"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type columnEntity struct {
	entity
	Name      string `json:"Name"`
	Position  string `json:"Position"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type taskEntity struct {
	entity
	ColumnID    string  `json:"ColumnId"`
	Title       string  `json:"Title"`
	Description *string `json:"Description,omitempty"`
	// Tags is a JSON array; tables have no list type.
	Tags      string `json:"Tags"`
	Position  string `json:"Position"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// quote renders v as an OData string literal.
func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func insert(ctx context.Context, c *aztables.Client, ent any) error {
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := c.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return &domain.Error{Kind: domain.ErrConflict, Message: "record already exists", Err: err}
		}
		return err
	}
	return nil
}

func replace(ctx context.Context, c *aztables.Client, ent any) error {
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if isStatus(err, http.StatusNotFound) {
		return &domain.Error{Kind: domain.ErrNotFound, Message: "record not found", Err: err}
	}
	return err
}

func remove(ctx context.Context, c *aztables.Client, pk, rk string) error {
	_, err := c.DeleteEntity(ctx, pk, rk, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func get[T any](ctx context.Context, c *aztables.Client, pk, rk string) (*T, error) {
	resp, err := c.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ent T
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

func list[T any](ctx context.Context, c *aztables.Client, filter string, top *int32) ([]T, error) {
	pager := c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: top})
	var out []T
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent T
			if err := sonic.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
		if top != nil && len(out) >= int(*top) {
			break
		}
	}
	return out, nil
}

func toBoardEntity(b domain.Board) boardEntity {
	return boardEntity{
		entity:      entity{PartitionKey: b.ID, RowKey: b.ID},
		Name:        b.Name,
		Description: b.Description,
		OwnerID:     b.OwnerID,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
}

func (e boardEntity) board() domain.Board {
	return domain.Board{
		ID:          e.RowKey,
		Name:        e.Name,
		Description: e.Description,
		OwnerID:     e.OwnerID,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
}

func toMemberEntity(m domain.Member) memberEntity {
	return memberEntity{
		entity:    entity{PartitionKey: m.BoardID, RowKey: m.UserID},
		Role:      string(m.Role),
		CreatedAt: formatTime(m.CreatedAt),
		UpdatedAt: formatTime(m.UpdatedAt),
	}
}

func (e memberEntity) member() domain.Member {
	return domain.Member{
		BoardID:   e.PartitionKey,
		UserID:    e.RowKey,
		Role:      domain.Role(e.Role),
		CreatedAt: parseTime(e.CreatedAt),
		UpdatedAt: parseTime(e.UpdatedAt),
	}
}

func toColumnEntity(c domain.Column) columnEntity {
	return columnEntity{
		entity:    entity{PartitionKey: c.BoardID, RowKey: c.ID},
		Name:      c.Name,
		Position:  c.Position,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func (e columnEntity) column() domain.Column {
	return domain.Column{
		ID:        e.RowKey,
		BoardID:   e.PartitionKey,
		Name:      e.Name,
		Position:  e.Position,
		CreatedAt: parseTime(e.CreatedAt),
		UpdatedAt: parseTime(e.UpdatedAt),
	}
}

func toTaskEntity(t domain.Task) (taskEntity, error) {
	tags := "[]"
	if len(t.Tags) > 0 {
		data, err := sonic.Marshal(t.Tags)
		if err != nil {
			return taskEntity{}, err
		}
		tags = string(data)
	}
	return taskEntity{
		entity:      entity{PartitionKey: t.BoardID, RowKey: t.ID},
		ColumnID:    t.ColumnID,
		Title:       t.Title,
		Description: t.Description,
		Tags:        tags,
		Position:    t.Position,
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}, nil
}

func (e taskEntity) task() (domain.Task, error) {
	var tags []string
	if e.Tags != "" {
		if err := sonic.UnmarshalString(e.Tags, &tags); err != nil {
			return domain.Task{}, fmt.Errorf("decode tags of task %s: %w", e.RowKey, err)
		}
	}
	return domain.Task{
		ID:          e.RowKey,
		ColumnID:    e.ColumnID,
		BoardID:     e.PartitionKey,
		Title:       e.Title,
		Description: e.Description,
		Tags:        tags,
		Position:    e.Position,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}, nil
}

func (s *Tables) InsertBoard(ctx context.Context, b domain.Board) error {
	return insert(ctx, s.boards, toBoardEntity(b))
}

func (s *Tables) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	ent, err := get[boardEntity](ctx, s.boards, id, id)
	if err != nil || ent == nil {
		return nil, err
	}
	b := ent.board()
	return &b, nil
}

func (s *Tables) UpdateBoard(ctx context.Context, b domain.Board) error {
	return replace(ctx, s.boards, toBoardEntity(b))
}

func (s *Tables) DeleteBoard(ctx context.Context, id string) error {
	return remove(ctx, s.boards, id, id)
}

func (s *Tables) InsertMember(ctx context.Context, m domain.Member) error {
	return insert(ctx, s.members, toMemberEntity(m))
}

func (s *Tables) GetMember(ctx context.Context, boardID, userID string) (*domain.Member, error) {
	ent, err := get[memberEntity](ctx, s.members, boardID, userID)
	if err != nil || ent == nil {
		return nil, err
	}
	m := ent.member()
	return &m, nil
}

func (s *Tables) ListMembers(ctx context.Context, boardID string) ([]domain.Member, error) {
	ents, err := list[memberEntity](ctx, s.members, "PartitionKey eq "+quote(boardID), nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.member())
	}
	return out, nil
}

// ListMemberships scans across partitions for the user's row key.
func (s *Tables) ListMemberships(ctx context.Context, userID string) ([]domain.Member, error) {
	ents, err := list[memberEntity](ctx, s.members, "RowKey eq "+quote(userID), nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.member())
	}
	return out, nil
}

func (s *Tables) UpdateMember(ctx context.Context, m domain.Member) error {
	return replace(ctx, s.members, toMemberEntity(m))
}

func (s *Tables) DeleteMember(ctx context.Context, boardID, userID string) error {
	return remove(ctx, s.members, boardID, userID)
}

func (s *Tables) InsertColumn(ctx context.Context, c domain.Column) error {
	return insert(ctx, s.columns, toColumnEntity(c))
}

func (s *Tables) GetColumn(ctx context.Context, id string) (*domain.Column, error) {
	one := int32(1)
	ents, err := list[columnEntity](ctx, s.columns, "RowKey eq "+quote(id), &one)
	if err != nil || len(ents) == 0 {
		return nil, err
	}
	c := ents[0].column()
	return &c, nil
}

func (s *Tables) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	ents, err := list[columnEntity](ctx, s.columns, "PartitionKey eq "+quote(boardID), nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Column, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.column())
	}
	return out, nil
}

func (s *Tables) UpdateColumn(ctx context.Context, c domain.Column) error {
	return replace(ctx, s.columns, toColumnEntity(c))
}

func (s *Tables) DeleteColumn(ctx context.Context, boardID, id string) error {
	return remove(ctx, s.columns, boardID, id)
}

func (s *Tables) InsertTask(ctx context.Context, t domain.Task) error {
	ent, err := toTaskEntity(t)
	if err != nil {
		return err
	}
	return insert(ctx, s.tasks, ent)
}

func (s *Tables) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	one := int32(1)
	ents, err := list[taskEntity](ctx, s.tasks, "RowKey eq "+quote(id), &one)
	if err != nil || len(ents) == 0 {
		return nil, err
	}
	t, err := ents[0].task()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Tables) ListTasks(ctx context.Context, boardID, columnID string) ([]domain.Task, error) {
	filter := "PartitionKey eq " + quote(boardID) + " and ColumnId eq " + quote(columnID)
	ents, err := list[taskEntity](ctx, s.tasks, filter, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(ents))
	for _, e := range ents {
		t, err := e.task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Tables) UpdateTask(ctx context.Context, t domain.Task) error {
	ent, err := toTaskEntity(t)
	if err != nil {
		return err
	}
	return replace(ctx, s.tasks, ent)
}

func (s *Tables) DeleteTask(ctx context.Context, boardID, id string) error {
	return remove(ctx, s.tasks, boardID, id)
}

var _ domain.Storage = (*Tables)(nil)
