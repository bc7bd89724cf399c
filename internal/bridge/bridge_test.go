// ABOUTME: Tests for the conversation bridge core.
// ABOUTME: Covers classification, mention stripping, trigger/payload paths, greetings, and sends.

package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuribom/relay-gateway/internal/config"
	"github.com/nuribom/relay-gateway/internal/connector"
	"github.com/nuribom/relay-gateway/internal/jobrunner"
	"github.com/nuribom/relay-gateway/internal/mailbox"
)

// mockRunner records StartJob calls.
type mockRunner struct {
	mu    sync.Mutex
	calls []map[string]any
	creds []*jobrunner.Credential
	err   error
}

func (m *mockRunner) StartJob(_ context.Context, cred *jobrunner.Credential, args map[string]any) (*jobrunner.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	m.creds = append(m.creds, cred)
	if m.err != nil {
		return nil, m.err
	}
	return &jobrunner.Job{ID: 1, State: "Pending"}, nil
}

type sentMessage struct {
	ref    connector.ConversationRef
	text   string
	format string
}

// mockChannel records outbound sends and serves identity lookups.
type mockChannel struct {
	mu         sync.Mutex
	users      map[string]*connector.UserInfo
	resolveErr error
	sent       []sentMessage
	convID     string
	createErr  error
}

func (m *mockChannel) ResolveUser(_ context.Context, objectID string) (*connector.UserInfo, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	if u, ok := m.users[objectID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("unknown user %s", objectID)
}

func (m *mockChannel) ContinueConversation(_ context.Context, ref *connector.ConversationRef, text, format string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ref: *ref, text: text, format: format})
	return nil
}

func (m *mockChannel) CreateConversation(_ context.Context, _ *connector.ConversationRef, _ string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.convID, nil
}

func defaultOptions() Options {
	return Options{
		Bot: config.BotConfig{
			TextFormat: "markdown",
			Greeting:   "Hello! How can I help?",
			AckMessage: "Checking for in-progress work.",
		},
		Keywords:        []string{"거래처", "거래선"},
		MailboxMode:     config.ModeSingle,
		DefaultKey:      "default",
		PollingInterval: 3 * time.Second,
		TaskOwnerID:     "owner-1",
	}
}

func newTestBridge(t *testing.T, opts Options) (*Bridge, *mailbox.Mailbox, *mockRunner, *mockChannel) {
	t.Helper()
	box := mailbox.New()
	runner := &mockRunner{}
	channel := &mockChannel{
		users: map[string]*connector.UserInfo{
			"obj-1": {ID: "u-1", Name: "Kim Minsu", Email: "minsu.kim@example.com"},
		},
		convID: "new-conv",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := New(opts, box, runner, channel, logger)
	b.SetCredential(&jobrunner.Credential{Token: "tok"})
	return b, box, runner, channel
}

var activitySeq int

func messageActivity(text string) *connector.Activity {
	activitySeq++
	return &connector.Activity{
		Type:       connector.ActivityMessage,
		ID:         fmt.Sprintf("act-%d", activitySeq),
		ChannelID:  "msteams",
		ServiceURL: "https://service.example.com",
		From:       connector.Account{ID: "29:kim", Name: "Kim Minsu", AADObjectID: "obj-1"},
		Recipient:  connector.Account{ID: "28:bot", Name: "relay"},
		Conversation: connector.ConversationAccount{
			ID:       "conv-1",
			TenantID: "tenant-id",
		},
		Text: text,
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"markup mention", "<at>relay</at> 거래선 등록해주세요", "거래선 등록해주세요"},
		{"plain mention", "@relay what is the status", "what is the status"},
		{"no mention", "오늘 날씨 어때", "오늘 날씨 어때"},
		{"mention only falls back to raw", "<at>relay</at>", "<at>relay</at>"},
		{"whitespace trimmed", "  hello  ", "hello"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			act := messageActivity(tc.text)
			assert.Equal(t, tc.want, CleanText(act))
		})
	}
}

func TestIsTrigger(t *testing.T) {
	keywords := []string{"거래처", "거래선"}

	assert.True(t, IsTrigger("거래선 등록해주세요", keywords))
	assert.True(t, IsTrigger("신규 거래처 추가", keywords))
	assert.False(t, IsTrigger("오늘 날씨 어때", keywords))

	// Pure function: repeated calls agree
	for i := 0; i < 3; i++ {
		assert.True(t, IsTrigger("거래선 등록해주세요", keywords))
		assert.False(t, IsTrigger("오늘 날씨 어때", keywords))
	}

	// Case-sensitive substring match
	assert.True(t, IsTrigger("please add vendor now", []string{"vendor"}))
	assert.False(t, IsTrigger("please add Vendor now", []string{"vendor"}))
}

func TestOnMessage_TriggerPath(t *testing.T) {
	b, box, runner, channel := newTestBridge(t, defaultOptions())

	err := b.HandleActivity(context.Background(), messageActivity("<at>relay</at> 거래선 등록해주세요"))
	require.NoError(t, err)

	// The mailbox stays untouched on the trigger path
	assert.True(t, box.IsEmpty("default"))

	require.Len(t, runner.calls, 1)
	args := runner.calls[0]
	assert.Equal(t, 3, args["g_polling_sec"])
	assert.Equal(t, "owner-1", args["g_task_owner_id"])

	userInfo, ok := args["g_user_info"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "u-1", userInfo["id"])
	assert.Equal(t, "Kim Minsu", userInfo["name"])
	assert.Equal(t, "minsu.kim@example.com", userInfo["email"])

	require.NotNil(t, runner.creds[0])
	assert.Equal(t, "tok", runner.creds[0].Token)

	// Acknowledgement went out before the job start
	require.Len(t, channel.sent, 1)
	assert.Equal(t, "Checking for in-progress work.", channel.sent[0].text)
	assert.Equal(t, "conv-1", channel.sent[0].ref.Conversation.ID)
}

func TestOnMessage_PayloadPath(t *testing.T) {
	b, box, runner, _ := newTestBridge(t, defaultOptions())

	err := b.HandleActivity(context.Background(), messageActivity("오늘 날씨 어때"))
	require.NoError(t, err)

	assert.Empty(t, runner.calls)

	got, ok := box.Dequeue("default")
	require.True(t, ok)
	assert.Equal(t, "오늘 날씨 어때", got)
}

func TestOnMessage_MentionStrippedBeforeEnqueue(t *testing.T) {
	b, box, _, _ := newTestBridge(t, defaultOptions())

	err := b.HandleActivity(context.Background(), messageActivity("<at>relay</at> 서울시 강남구"))
	require.NoError(t, err)

	got, ok := box.Dequeue("default")
	require.True(t, ok)
	assert.Equal(t, "서울시 강남구", got)
}

func TestOnMessage_SignatureIgnored(t *testing.T) {
	opts := defaultOptions()
	opts.Bot.SignaturePrefix = "(bot)"
	b, box, runner, _ := newTestBridge(t, opts)

	err := b.HandleActivity(context.Background(), messageActivity("(bot) 거래선 작업이 끝났습니다"))
	require.NoError(t, err)

	// Neither path ran, even though the text contains a trigger keyword
	assert.Empty(t, runner.calls)
	assert.True(t, box.IsEmpty("default"))
}

func TestOnMessage_DuplicateActivityIgnored(t *testing.T) {
	b, box, _, _ := newTestBridge(t, defaultOptions())

	act := messageActivity("중복 메시지")
	require.NoError(t, b.HandleActivity(context.Background(), act))
	require.NoError(t, b.HandleActivity(context.Background(), act))

	assert.Equal(t, 1, box.Len("default"))
}

func TestOnMessage_LookupFailureFallsBackToPlatformIdentity(t *testing.T) {
	b, _, runner, channel := newTestBridge(t, defaultOptions())
	channel.resolveErr = fmt.Errorf("directory unavailable")

	err := b.HandleActivity(context.Background(), messageActivity("거래선 등록해주세요"))
	require.NoError(t, err, "identity lookup failure must not abort the turn")

	require.Len(t, runner.calls, 1)
	userInfo := runner.calls[0]["g_user_info"].(map[string]string)
	assert.Equal(t, "29:kim", userInfo["id"])
	assert.Equal(t, "Kim Minsu", userInfo["name"])
}

func TestOnMessage_KeyedModeUsesConversationID(t *testing.T) {
	opts := defaultOptions()
	opts.MailboxMode = config.ModeKeyed
	b, box, _, _ := newTestBridge(t, opts)

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("회신 내용입니다")))

	assert.True(t, box.IsEmpty("default"))
	got, ok := box.Dequeue("conv-1")
	require.True(t, ok)
	assert.Equal(t, "회신 내용입니다", got)
}

func TestOnMembersAdded(t *testing.T) {
	b, _, _, channel := newTestBridge(t, defaultOptions())

	act := &connector.Activity{
		Type:       connector.ActivityMembersAdded,
		ChannelID:  "msteams",
		ServiceURL: "https://service.example.com",
		Recipient:  connector.Account{ID: "28:bot", Name: "relay"},
		Conversation: connector.ConversationAccount{
			ID: "conv-2",
		},
		MembersAdded: []connector.Account{
			{ID: "28:bot", Name: "relay"}, // the bot itself: no greeting
			{ID: "29:lee", Name: "Lee Jiyeon"},
		},
	}

	require.NoError(t, b.HandleActivity(context.Background(), act))

	require.Len(t, channel.sent, 1)
	assert.Equal(t, "Hello! How can I help?", channel.sent[0].text)
	assert.Equal(t, "29:lee", channel.sent[0].ref.User.ID)
}

func TestHandleActivity_UnknownTypeIgnored(t *testing.T) {
	b, box, runner, channel := newTestBridge(t, defaultOptions())

	err := b.HandleActivity(context.Background(), &connector.Activity{Type: "typing"})
	require.NoError(t, err)
	assert.Empty(t, runner.calls)
	assert.Empty(t, channel.sent)
	assert.True(t, box.IsEmpty("default"))
}

func TestSendToCurrentConversation_NoReference(t *testing.T) {
	b, _, _, channel := newTestBridge(t, defaultOptions())

	// Silent failure by contract
	err := b.SendToCurrentConversation(context.Background(), "anyone there?")
	require.NoError(t, err)
	assert.Empty(t, channel.sent)
}

func TestSendToCurrentConversation_AfterInbound(t *testing.T) {
	b, _, _, channel := newTestBridge(t, defaultOptions())

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))

	require.NoError(t, b.SendToCurrentConversation(context.Background(), "follow-up"))
	require.Len(t, channel.sent, 1)
	assert.Equal(t, "follow-up", channel.sent[0].text)
	assert.Equal(t, "markdown", channel.sent[0].format)
	assert.Equal(t, "conv-1", channel.sent[0].ref.Conversation.ID)
}

func TestSendToUser(t *testing.T) {
	b, _, _, channel := newTestBridge(t, defaultOptions())

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))

	require.NoError(t, b.SendToUser(context.Background(), "29:lee", "please review"))

	require.Len(t, channel.sent, 1)
	sent := channel.sent[0]
	assert.Equal(t, "please review", sent.text)
	assert.Equal(t, "new-conv", sent.ref.Conversation.ID)
	assert.Equal(t, "personal", sent.ref.Conversation.ConversationType)
	assert.Equal(t, "29:lee", sent.ref.User.ID)
}

func TestSendToUser_NoReference(t *testing.T) {
	b, _, _, _ := newTestBridge(t, defaultOptions())

	err := b.SendToUser(context.Background(), "29:lee", "hello")
	require.Error(t, err)
}

func TestSendToUser_CreateFails(t *testing.T) {
	b, _, _, channel := newTestBridge(t, defaultOptions())
	channel.createErr = fmt.Errorf("service unavailable")

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))

	err := b.SendToUser(context.Background(), "29:lee", "hello")
	require.Error(t, err)
	assert.Len(t, channel.sent, 0)
}

func TestRender_HTMLFormat(t *testing.T) {
	opts := defaultOptions()
	opts.Bot.TextFormat = "html"
	b, _, _, channel := newTestBridge(t, opts)

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))
	require.NoError(t, b.SendToCurrentConversation(context.Background(), "**bold** move"))

	require.Len(t, channel.sent, 1)
	assert.Contains(t, channel.sent[0].text, "<strong>bold</strong>")
	assert.Equal(t, "xml", channel.sent[0].format)
}

func TestRender_PlainFormat(t *testing.T) {
	opts := defaultOptions()
	opts.Bot.TextFormat = "plain"
	b, _, _, channel := newTestBridge(t, opts)

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))
	require.NoError(t, b.SendToCurrentConversation(context.Background(), "**bold** move"))

	require.Len(t, channel.sent, 1)
	assert.Equal(t, "**bold** move", channel.sent[0].text)
	assert.Equal(t, "plain", channel.sent[0].format)
}

func TestServiceURLOverride(t *testing.T) {
	opts := defaultOptions()
	opts.Bot.ServiceURL = "https://override.example.com"
	b, _, _, channel := newTestBridge(t, opts)

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))

	ref := b.CurrentRef()
	require.NotNil(t, ref)
	assert.Equal(t, "https://override.example.com", ref.ServiceURL)

	require.NoError(t, b.SendToCurrentConversation(context.Background(), "reply"))
	require.Len(t, channel.sent, 1)
	assert.Equal(t, "https://override.example.com", channel.sent[0].ref.ServiceURL)
}

func TestServiceURLFromActivityWhenUnset(t *testing.T) {
	b, _, _, _ := newTestBridge(t, defaultOptions())

	require.NoError(t, b.HandleActivity(context.Background(), messageActivity("잡담")))

	ref := b.CurrentRef()
	require.NotNil(t, ref)
	assert.Equal(t, "https://service.example.com", ref.ServiceURL)
}

func TestCurrentRef_LastWriterWins(t *testing.T) {
	b, _, _, _ := newTestBridge(t, defaultOptions())

	first := messageActivity("first")
	second := messageActivity("second")
	second.Conversation.ID = "conv-other"

	require.NoError(t, b.HandleActivity(context.Background(), first))
	require.NoError(t, b.HandleActivity(context.Background(), second))

	ref := b.CurrentRef()
	require.NotNil(t, ref)
	assert.Equal(t, "conv-other", ref.Conversation.ID)
}
