// Package testutil 提供测试用的内存存储与模拟机器人
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/models"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

var (
	_ repository.RecordSource = (*MockRecordSource)(nil)
	_ telegram.Bot            = (*MockBot)(nil)
)

// ==================== MockRecordSource ====================

// MockRecordSource 内存记录存储（用于开发/测试）
type MockRecordSource struct {
	mu sync.Mutex

	tables map[string]int64
	rows   map[int64][]models.Row
	fields map[int64]map[string]string
	nextID int64

	// 故障注入：按表名 / 表 ID 返回指定错误
	TableIDErr   map[string]error
	ListRowsErr  map[int64]error
	CreateRowErr error

	// ListRowsCalls 记录每次 ListRows 的 limit
	ListRowsCalls []int
}

// NewMockRecordSource 创建内存记录存储
func NewMockRecordSource() *MockRecordSource {
	return &MockRecordSource{
		tables:      make(map[string]int64),
		rows:        make(map[int64][]models.Row),
		fields:      make(map[int64]map[string]string),
		TableIDErr:  make(map[string]error),
		ListRowsErr: make(map[int64]error),
	}
}

// AddTable 创建表并写入行，返回表 ID
func (s *MockRecordSource) AddTable(name string, rows ...models.Row) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tables[name]
	if !ok {
		s.nextID++
		id = s.nextID
		s.tables[name] = id
	}
	s.rows[id] = append(s.rows[id], rows...)
	return id
}

// Rows 返回表中的全部行
func (s *MockRecordSource) Rows(name string) []models.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tables[name]
	if !ok {
		return nil
	}
	out := make([]models.Row, len(s.rows[id]))
	copy(out, s.rows[id])
	return out
}

// TableID 按表名解析表 ID
func (s *MockRecordSource) TableID(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.TableIDErr[name]; err != nil {
		return 0, err
	}
	id, ok := s.tables[name]
	if !ok {
		return 0, errors.ErrTableNotFound.WithMessage("table not found: " + name)
	}
	return id, nil
}

// ListRows 读取最多 limit 行
func (s *MockRecordSource) ListRows(ctx context.Context, tableID int64, limit int) ([]models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ListRowsCalls = append(s.ListRowsCalls, limit)
	if err := s.ListRowsErr[tableID]; err != nil {
		return nil, err
	}
	rows := s.rows[tableID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.Row, len(rows))
	copy(out, rows)
	return out, nil
}

// CreateRow 新增一行
func (s *MockRecordSource) CreateRow(ctx context.Context, tableID int64, fields map[string]interface{}) (models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateRowErr != nil {
		return nil, s.CreateRowErr
	}
	row := models.Row{"id": int64(len(s.rows[tableID]) + 1)}
	for k, v := range fields {
		row[k] = v
	}
	s.rows[tableID] = append(s.rows[tableID], row)
	return row, nil
}

// ListTables 列出全部表
func (s *MockRecordSource) ListTables(ctx context.Context) ([]models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := make([]models.Table, 0, len(s.tables))
	for name, id := range s.tables {
		tables = append(tables, models.Table{ID: id, Name: name})
	}
	return tables, nil
}

// CreateTable 创建表
func (s *MockRecordSource) CreateTable(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.AddTable(name), nil
}

// EnsureField 记录字段
func (s *MockRecordSource) EnsureField(ctx context.Context, tableID int64, name, fieldType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fields[tableID] == nil {
		s.fields[tableID] = make(map[string]string)
	}
	s.fields[tableID][name] = fieldType
	return nil
}

// Fields 返回表的字段名到类型映射
func (s *MockRecordSource) Fields(tableID int64) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.fields[tableID]))
	for k, v := range s.fields[tableID] {
		out[k] = v
	}
	return out
}

// ==================== MockBot ====================

// MockBot 模拟机器人（用于开发/测试），记录所有调用
type MockBot struct {
	mu sync.Mutex

	SentMessages []MockMessage
	Edits        []MockMessage
	Answers      []MockAnswer

	// SendErr 非空时 SendMessage 返回该错误
	SendErr error
	// SendErrTo 按会话注入发送错误
	SendErrTo map[int64]error

	nextID int64
}

// MockMessage 模拟消息
type MockMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
	Markup    *telegram.InlineKeyboardMarkup
	SentAt    time.Time
}

// MockAnswer 模拟回调应答
type MockAnswer struct {
	CallbackID string
	Text       string
	ShowAlert  bool
}

// NewMockBot 创建模拟机器人
func NewMockBot() *MockBot {
	return &MockBot{
		SentMessages: make([]MockMessage, 0),
		SendErrTo:    make(map[int64]error),
	}
}

// SendMessage 模拟发送
func (b *MockBot) SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SendErr != nil {
		return nil, b.SendErr
	}
	if err := b.SendErrTo[chatID]; err != nil {
		return nil, err
	}
	b.nextID++
	b.SentMessages = append(b.SentMessages, MockMessage{
		ChatID:    chatID,
		MessageID: b.nextID,
		Text:      text,
		Markup:    markup,
		SentAt:    time.Now(),
	})
	return &telegram.Message{MessageID: b.nextID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

// EditMessageText 模拟编辑
func (b *MockBot) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Edits = append(b.Edits, MockMessage{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		Markup:    markup,
		SentAt:    time.Now(),
	})
	return nil
}

// AnswerCallbackQuery 模拟应答
func (b *MockBot) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Answers = append(b.Answers, MockAnswer{CallbackID: callbackID, Text: text, ShowAlert: showAlert})
	return nil
}

// MessagesTo 返回发给指定会话的消息
func (b *MockBot) MessagesTo(chatID int64) []MockMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]MockMessage, 0)
	for _, m := range b.SentMessages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// GetLastMessage 获取最后发送的消息
func (b *MockBot) GetLastMessage() *MockMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.SentMessages) == 0 {
		return nil
	}
	return &b.SentMessages[len(b.SentMessages)-1]
}

// Clear 清空记录
func (b *MockBot) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.SentMessages = make([]MockMessage, 0)
	b.Edits = nil
	b.Answers = nil
}
