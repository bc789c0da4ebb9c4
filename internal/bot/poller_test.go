package bot

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

// scriptedSource 依次返回预设批次，用完后取消上下文
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	errs    []error
	offsets []int64
	cancel  context.CancelFunc
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsets = append(s.offsets, offset)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.batches) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

type recordingHandler struct {
	ids     []int64
	panicOn int64
	failOn  int64
}

func (h *recordingHandler) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	h.ids = append(h.ids, upd.UpdateID)
	if upd.UpdateID == h.panicOn {
		panic("boom")
	}
	if upd.UpdateID == h.failOn {
		return stderrors.New("handler failed")
	}
	return nil
}

func TestPoller_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &scriptedSource{
		batches: [][]telegram.Update{
			{{UpdateID: 10}, {UpdateID: 11}},
			{{UpdateID: 12}},
		},
		cancel: cancel,
	}
	handler := &recordingHandler{panicOn: 11, failOn: 12}
	p := NewPoller(source, handler, 30, nil)

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []int64{10, 11, 12}, handler.ids)
	assert.Equal(t, []int64{0, 12, 13}, source.offsets)
}

func TestPoller_RetriesOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &scriptedSource{
		errs:    []error{stderrors.New("502 Bad Gateway")},
		batches: [][]telegram.Update{{{UpdateID: 1}}},
		cancel:  cancel,
	}
	handler := &recordingHandler{}
	p := NewPoller(source, handler, 0, nil)
	p.retry = 10 * time.Millisecond

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []int64{1}, handler.ids)
	assert.Len(t, source.offsets, 3)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &scriptedSource{errs: []error{stderrors.New("down")}, cancel: cancel}
	p := NewPoller(source, &recordingHandler{}, 0, nil)
	p.retry = time.Hour

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
