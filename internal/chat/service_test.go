package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agri-chat-core/server/internal/agent/model"
	"github.com/agri-chat-core/server/internal/agent/repo"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/store"
)

type fakeRunner struct {
	out      *model.TurnOutput
	err      error
	inflight atomic.Int32
	maxSeen  atomic.Int32
	inputs   []model.TurnInput
	mu       sync.Mutex
}

func (f *fakeRunner) Run(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := *f.out
	out.ConversationID = in.ConversationID
	return &out, nil
}

func newService(t *testing.T, r *fakeRunner) (*Service, *store.SQLiteStore) {
	svc, db, _ := newServiceWithCheckpoints(t, r)
	return svc, db
}

func newServiceWithCheckpoints(t *testing.T, r *fakeRunner) (*Service, *store.SQLiteStore, *repo.RedisCheckpointStore) {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cps := repo.NewRedisCheckpointStore(rdb, time.Hour)

	return NewService(r, db, cps), db, cps
}

func TestTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, Title("   "))
	assert.Equal(t, "chào bạn", Title("  chào bạn  "))
	long := strings.Repeat("lúa ", 20)
	assert.Equal(t, strings.TrimSpace(string([]rune(long)[:50])), Title(long))
}

func TestProcessNewConversation(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{FinalMessage: "Xin chào!", QueryType: model.QueryChitchat, Terminal: "Chitchat"}}
	svc, db := newService(t, r)
	ctx := context.Background()

	ev := svc.Process(ctx, Request{UserID: "u1", Text: "chào bạn"})
	require.Equal(t, EventEnd, ev.Event, ev.Detail)
	assert.Equal(t, "Xin chào!", ev.FinalMessage)
	require.NotEmpty(t, ev.ConversationID)

	c, err := db.GetConversation(ctx, ev.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "chào bạn", c.Title)

	msgs, err := db.ListMessages(ctx, ev.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.SenderUser, msgs[0].Sender)
	assert.Equal(t, store.SenderBot, msgs[1].Sender)
	assert.Equal(t, ev.ConversationID, r.inputs[0].ConversationID)
}

func TestProcessImageStoresDetection(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{
		FinalMessage: "Cây bị đạo ôn.",
		QueryType:    model.QueryImageDisease,
		DiseaseInfo:  &model.DiseaseInfo{PlantType: "cây lúa", DiseaseDetected: "bệnh đạo ôn cây lúa", Confidence: model.Ptr(0.88)},
	}}
	svc, db := newService(t, r)
	ctx := context.Background()

	ev := svc.Process(ctx, Request{UserID: "u1", ImageBase64: "aW1n"})
	require.Equal(t, EventEnd, ev.Event)

	msgs, err := db.ListMessages(ctx, ev.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, imagePlaceholder, msgs[0].Content)

	d, err := db.GetDetection(ctx, msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "bệnh đạo ôn cây lúa", d.DiseaseName)
	assert.InDelta(t, 0.88, *d.Confidence, 1e-9)
}

func TestProcessSkipsSentinelDetection(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{
		FinalMessage: "Ảnh chưa rõ.",
		QueryType:    model.QueryImageDisease,
		DiseaseInfo:  &model.DiseaseInfo{PlantType: "Unknown", DiseaseDetected: model.DiseaseErrorProcessing},
	}}
	svc, db := newService(t, r)
	ctx := context.Background()

	ev := svc.Process(ctx, Request{UserID: "u1", ImageBase64: "bad"})
	require.Equal(t, EventEnd, ev.Event)
	msgs, err := db.ListMessages(ctx, ev.ConversationID)
	require.NoError(t, err)
	_, err = db.GetDetection(ctx, msgs[1].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessRunnerFailure(t *testing.T) {
	r := &fakeRunner{err: errx.Turn(errors.New("node exploded"))}
	svc, db := newService(t, r)
	ctx := context.Background()

	c, err := db.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	ev := svc.Process(ctx, Request{UserID: "u1", ConversationID: c.ID, Text: "cứu cây"})
	assert.Equal(t, EventError, ev.Event)
	assert.Equal(t, "Lỗi server: OrchestratorFailure", ev.Detail)

	msgs, err := db.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestProcessRejectsForeignConversation(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{FinalMessage: "x"}}
	svc, db := newService(t, r)
	ctx := context.Background()

	c, err := db.CreateConversation(ctx, "owner", "t")
	require.NoError(t, err)

	ev := svc.Process(ctx, Request{UserID: "intruder", ConversationID: c.ID, Text: "hi"})
	assert.Equal(t, EventError, ev.Event)
	ev = svc.Process(ctx, Request{UserID: "owner", ConversationID: "missing", Text: "hi"})
	assert.Equal(t, EventError, ev.Event)
	assert.Empty(t, r.inputs)
}

func TestProcessSerializesConversation(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{FinalMessage: "ok", QueryType: model.QueryNormalQA}}
	svc, db := newService(t, r)
	ctx := context.Background()

	c, err := db.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := svc.Process(ctx, Request{UserID: "u1", ConversationID: c.ID, Text: "hỏi"})
			assert.Equal(t, EventEnd, ev.Event)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), r.maxSeen.Load())
	assert.Zero(t, svc.locks.size())

	msgs, err := db.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 12)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	unlockA()
	assert.Zero(t, k.size())
}

func TestConversationsAndHistory(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{FinalMessage: "Xin chào!", QueryType: model.QueryChitchat}}
	svc, _ := newService(t, r)
	ctx := context.Background()

	first := svc.Process(ctx, Request{UserID: "u1", Text: "chào bạn"})
	require.Equal(t, EventEnd, first.Event)
	second := svc.Process(ctx, Request{UserID: "u1", Text: "lúa bị vàng lá"})
	require.Equal(t, EventEnd, second.Event)
	require.Equal(t, EventEnd, svc.Process(ctx, Request{UserID: "u2", Text: "hi"}).Event)

	convs, err := svc.Conversations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	history, err := svc.History(ctx, "u1", first.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "chào bạn", history[0].Content)
	assert.Equal(t, "Xin chào!", history[1].Content)

	_, err = svc.History(ctx, "u2", first.ConversationID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.History(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestDetectionsForUser(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{
		FinalMessage: "Cây bị đạo ôn.",
		QueryType:    model.QueryImageDisease,
		DiseaseInfo:  &model.DiseaseInfo{PlantType: "cây lúa", DiseaseDetected: "bệnh đạo ôn cây lúa", Confidence: model.Ptr(0.88)},
	}}
	svc, _ := newService(t, r)
	ctx := context.Background()

	ev := svc.Process(ctx, Request{UserID: "u1", ImageBase64: "aW1n"})
	require.Equal(t, EventEnd, ev.Event)

	got, err := svc.Detections(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bệnh đạo ôn cây lúa", got[0].DiseaseName)
	assert.Equal(t, ev.ConversationID, got[0].ConversationID)

	other, err := svc.Detections(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteConversationDropsCheckpoint(t *testing.T) {
	r := &fakeRunner{out: &model.TurnOutput{FinalMessage: "ok", QueryType: model.QueryNormalQA}}
	svc, db, cps := newServiceWithCheckpoints(t, r)
	ctx := context.Background()

	ev := svc.Process(ctx, Request{UserID: "u1", Text: "bón phân lúa"})
	require.Equal(t, EventEnd, ev.Event)
	convID := ev.ConversationID
	require.NoError(t, cps.Save(ctx, &model.TurnState{ConversationID: convID, Messages: []model.Message{model.UserMessage("bón phân lúa")}}))

	assert.ErrorIs(t, svc.DeleteConversation(ctx, "u2", convID), ErrAccessDenied)
	_, found, err := cps.Load(ctx, convID)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, svc.DeleteConversation(ctx, "u1", convID))

	_, found, err = cps.Load(ctx, convID)
	require.NoError(t, err)
	assert.False(t, found)
	_, err = db.GetConversation(ctx, convID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	ev = svc.Process(ctx, Request{UserID: "u1", ConversationID: convID, Text: "tiếp"})
	assert.Equal(t, EventError, ev.Event)
	assert.ErrorIs(t, svc.DeleteConversation(ctx, "u1", convID), ErrAccessDenied)
}
