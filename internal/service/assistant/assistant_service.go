// Package assistant 提供基于大模型的自由文本回复与对话记忆
package assistant

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dumeirei/realty-crm-bot/internal/common/errors"
	"github.com/dumeirei/realty-crm-bot/internal/common/logger"
	"github.com/dumeirei/realty-crm-bot/internal/common/metrics"
	"github.com/dumeirei/realty-crm-bot/internal/common/tracing"
	"github.com/dumeirei/realty-crm-bot/internal/repository"
	"github.com/dumeirei/realty-crm-bot/pkg/llm"
)

// 用户角色
const (
	RoleManager = "Руководитель"
	RoleStaff   = "Сотрудник"
)

// 固定回复
const (
	ReplyEmpty    = "Извините, ИИ не вернул ответ."
	ReplyDisabled = "ИИ-помощник отключён."
)

// DefaultPolicyMaxChars 系统提示中规章文本的最大字符数
const DefaultPolicyMaxChars = 6000

// Memory 对话记忆
type Memory interface {
	Append(ctx context.Context, userID int64, entry repository.DialogEntry) error
	Recent(ctx context.Context, userID int64, n int) ([]repository.DialogEntry, error)
}

// Config 助手配置
type Config struct {
	Policy         string
	PolicyMaxChars int
	HistoryTurns   int
}

// Service 助手服务
type Service struct {
	chatter llm.Chatter
	memory  Memory
	cfg     Config
	log     *zap.Logger
}

// NewService 创建助手服务，chatter 为 nil 时助手关闭
func NewService(chatter llm.Chatter, memory Memory, cfg Config, log *zap.Logger) *Service {
	if cfg.PolicyMaxChars <= 0 {
		cfg.PolicyMaxChars = DefaultPolicyMaxChars
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{chatter: chatter, memory: memory, cfg: cfg, log: log.Named("assistant")}
}

// SystemPrompt 构造系统提示，规章按字符截断
func SystemPrompt(role, policy string, maxChars int) string {
	runes := []rune(policy)
	if maxChars > 0 && len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return "Ты помощник внутри CRM агентства недвижимости. " +
		"Строго следуй инструкции и бизнес-логике. " +
		"Всегда спрашивай подтверждение перед изменениями в БД. " +
		fmt.Sprintf("Твоя роль: %s. Инструкция:\n%s", role, string(runes))
}

// Reply 回答用户的自由文本，失败时返回可直接展示的提示
func (s *Service) Reply(ctx context.Context, userID int64, role, text string) string {
	if s.chatter == nil {
		return ReplyDisabled
	}

	ctx, span := tracing.StartSpan(ctx, "assistant.Reply", tracing.WithAgentID(userID))
	defer span.End()

	messages := []llm.Message{{Role: llm.RoleSystem, Content: SystemPrompt(role, s.cfg.Policy, s.cfg.PolicyMaxChars)}}
	messages = append(messages, s.history(ctx, userID)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	answer, err := s.chatter.Chat(ctx, messages)
	switch {
	case stderrors.Is(err, llm.ErrEmptyAnswer):
		metrics.RecordLLMRequestGlobal("empty")
		return ReplyEmpty
	case err != nil:
		tracing.SetError(ctx, err)
		metrics.RecordLLMRequestGlobal("error")
		s.log.Error("llm chat failed", logger.AgentID(userID), logger.Err(errors.ErrLLMFailed.WithError(err)))
		return fmt.Sprintf("⚠️ Ошибка при обращении к ИИ: %v", err)
	}

	metrics.RecordLLMRequestGlobal("ok")
	return answer
}

// history 最近的对话记录，读取失败时忽略
func (s *Service) history(ctx context.Context, userID int64) []llm.Message {
	if s.memory == nil || s.cfg.HistoryTurns <= 0 {
		return nil
	}
	entries, err := s.memory.Recent(ctx, userID, s.cfg.HistoryTurns)
	if err != nil {
		s.log.Debug("memory unavailable", logger.AgentID(userID), logger.Err(err))
		return nil
	}

	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := llm.RoleUser
		if e.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: e.Text})
	}
	return out
}

// Remember 记录一轮对话，失败只记录日志
func (s *Service) Remember(ctx context.Context, userID int64, role, text string, meta map[string]string) {
	if s.memory == nil {
		return
	}
	if meta == nil {
		meta = map[string]string{}
	}
	meta["role"] = role
	entry := repository.DialogEntry{Role: llm.RoleUser, Text: text, Meta: meta}
	if err := s.memory.Append(ctx, userID, entry); err != nil {
		s.log.Warn("failed to remember dialog", logger.AgentID(userID), logger.Err(err))
	}
}

// RememberAnswer 记录助手的回答，失败只记录日志
func (s *Service) RememberAnswer(ctx context.Context, userID int64, text string) {
	if s.memory == nil {
		return
	}
	entry := repository.DialogEntry{Role: llm.RoleAssistant, Text: text}
	if err := s.memory.Append(ctx, userID, entry); err != nil {
		s.log.Warn("failed to remember answer", logger.AgentID(userID), logger.Err(err))
	}
}
