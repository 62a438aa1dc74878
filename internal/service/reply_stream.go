package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/metrics"
)

var errStreamClosed = errors.New("stream closed by caller")

// StreamOutcome 流式回复的最终结果
// Err 为 nil 时 AI 回复已保存；否则用户消息已被删除
type StreamOutcome struct {
	MessageID      int64
	ReplyID        int64
	ConversationID int64
	Model          string
	Content        string
	Err            error
}

// ReplyStream 只能向前读取一次的流式回复
//
//	for rs.Next() {
//		write(rs.Fragment())
//	}
//	outcome := rs.Outcome()
//
// Next 返回 false 时，回复已经保存或补偿删除已经完成
// Close 可以在任意 goroutine 调用，未结束的流按中断处理
type ReplyStream struct {
	svc      *ChatService
	turn     *turn
	ctx      context.Context
	cancel   context.CancelFunc
	upstream llm.Stream

	fragment string
	content  strings.Builder

	mu       sync.Mutex
	done     bool
	closed   bool
	outcome  StreamOutcome
	finished chan struct{}
}

func newReplyStream(svc *ChatService, t *turn, ctx context.Context, cancel context.CancelFunc, upstream llm.Stream) *ReplyStream {
	return &ReplyStream{
		svc:      svc,
		turn:     t,
		ctx:      ctx,
		cancel:   cancel,
		upstream: upstream,
		finished: make(chan struct{}),
	}
}

// Model 本轮实际使用的模型名
func (rs *ReplyStream) Model() string {
	return rs.turn.resolved.Model
}

// UserMessageID 本轮用户消息编号，流失败后该消息已不存在
func (rs *ReplyStream) UserMessageID() int64 {
	return rs.turn.userMsg.ID
}

// Next 读取下一段内容
// 返回 false 表示流已结束，此时可以读取 Outcome
func (rs *ReplyStream) Next() bool {
	for {
		if rs.isDone() {
			<-rs.finished
			return false
		}

		fragment, err := rs.upstream.Recv()

		rs.mu.Lock()
		closed := rs.closed
		rs.mu.Unlock()

		switch {
		case closed:
			rs.finishInterrupted(errStreamClosed)
			<-rs.finished
			return false
		case errors.Is(err, io.EOF):
			rs.finishCompleted()
			<-rs.finished
			return false
		case err != nil:
			rs.finishInterrupted(errors.Wrap(err, "provider stream"))
			<-rs.finished
			return false
		case fragment == "":
			continue
		}

		rs.fragment = fragment
		rs.content.WriteString(fragment)
		rs.svc.metrics.Chunk()
		return true
	}
}

// Fragment 返回最近一次 Next 读到的内容
func (rs *ReplyStream) Fragment() string {
	return rs.fragment
}

// Outcome 返回最终结果，只在 Next 返回 false 之后有意义
func (rs *ReplyStream) Outcome() StreamOutcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.outcome
}

// Close 放弃读取，尚未完成的回复按中断处理并删除用户消息
// 返回时流已经结束
func (rs *ReplyStream) Close() {
	rs.mu.Lock()
	rs.closed = true
	rs.mu.Unlock()

	rs.cancel()
	_ = rs.upstream.Close()
	rs.finishInterrupted(errStreamClosed)
	<-rs.finished
}

func (rs *ReplyStream) isDone() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.done
}

// claim 标记流已结束，只有第一个调用者返回 true
func (rs *ReplyStream) claim() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.done {
		return false
	}
	rs.done = true
	return true
}

func (rs *ReplyStream) finishCompleted() {
	if !rs.claim() {
		return
	}
	defer rs.cleanup()

	t := rs.turn
	content := rs.content.String()
	aiMsg, err := rs.svc.saveReply(rs.ctx, t, content)
	if err != nil {
		err = rs.svc.fail(rs.ctx, t, ErrStreamInterrupted, err)
		rs.setOutcome(StreamOutcome{ConversationID: t.conv.ID, Model: t.resolved.Model, Err: err})
		return
	}

	rs.svc.metrics.Attempt(t.mode, metrics.OutcomeSuccess, time.Since(t.start))
	slog.Info("流式回复完成",
		"conversation_id", t.conv.ID,
		"message_id", aiMsg.ID,
		"model", t.resolved.Model,
		"length", len(content),
	)
	rs.setOutcome(StreamOutcome{
		MessageID:      aiMsg.ID,
		ReplyID:        t.userMsg.ID,
		ConversationID: t.conv.ID,
		Model:          t.resolved.Model,
		Content:        content,
	})
}

func (rs *ReplyStream) finishInterrupted(cause error) {
	if !rs.claim() {
		return
	}
	defer rs.cleanup()

	t := rs.turn
	// 已经输出的内容全部丢弃
	err := rs.svc.fail(rs.ctx, t, ErrStreamInterrupted, cause)
	rs.setOutcome(StreamOutcome{ConversationID: t.conv.ID, Model: t.resolved.Model, Err: err})
}

func (rs *ReplyStream) setOutcome(o StreamOutcome) {
	rs.mu.Lock()
	rs.outcome = o
	rs.mu.Unlock()
}

// cleanup 在 outcome 写入之后执行，最后唤醒等待者
func (rs *ReplyStream) cleanup() {
	rs.cancel()
	_ = rs.upstream.Close()
	rs.turn.release()
	close(rs.finished)
}
