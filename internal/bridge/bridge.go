// ABOUTME: Conversation bridge core: inbound dispatch, trigger classification, outbound sends.
// ABOUTME: Holds the last-writer-wins current-conversation slot and the startup credential.

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nuribom/relay-gateway/internal/config"
	"github.com/nuribom/relay-gateway/internal/connector"
	"github.com/nuribom/relay-gateway/internal/dedupe"
	"github.com/nuribom/relay-gateway/internal/jobrunner"
	"github.com/nuribom/relay-gateway/internal/mailbox"
)

// Runner starts remote automation jobs. Satisfied by *jobrunner.Client.
type Runner interface {
	StartJob(ctx context.Context, cred *jobrunner.Credential, args map[string]any) (*jobrunner.Job, error)
}

// Channel delivers messages to the chat platform and resolves user
// identities. Satisfied by *connector.Client.
type Channel interface {
	ResolveUser(ctx context.Context, objectID string) (*connector.UserInfo, error)
	ContinueConversation(ctx context.Context, ref *connector.ConversationRef, text, textFormat string) error
	CreateConversation(ctx context.Context, ref *connector.ConversationRef, userID string) (string, error)
}

// Options configures a Bridge.
type Options struct {
	Bot             config.BotConfig
	Keywords        []string
	MailboxMode     string
	DefaultKey      string
	PollingInterval time.Duration
	TaskOwnerID     string
}

// Bridge routes inbound activities to the mailbox or the job runner and
// sends messages back into conversations.
type Bridge struct {
	opts    Options
	box     *mailbox.Mailbox
	runner  Runner
	channel Channel
	seen    *dedupe.Cache
	logger  *slog.Logger

	// Single current-conversation slot, last writer wins.
	mu       sync.Mutex
	cred     *jobrunner.Credential
	lastRef  *connector.ConversationRef
	lastUser *connector.UserInfo
}

// New creates a Bridge.
func New(opts Options, box *mailbox.Mailbox, runner Runner, channel Channel, logger *slog.Logger) *Bridge {
	return &Bridge{
		opts:    opts,
		box:     box,
		runner:  runner,
		channel: channel,
		seen:    dedupe.New(5*time.Minute, 4096),
		logger:  logger.With("component", "bridge"),
	}
}

// SetCredential stores the orchestrator credential acquired at startup.
func (b *Bridge) SetCredential(cred *jobrunner.Credential) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cred = cred
}

func (b *Bridge) credential() *jobrunner.Credential {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cred
}

// CurrentRef returns the stored conversation reference, or nil when no
// message has arrived yet.
func (b *Bridge) CurrentRef() *connector.ConversationRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRef
}

// HandleActivity dispatches an inbound activity by kind. Unknown kinds
// are logged and ignored; a platform delivering new event types must not
// break the bridge.
func (b *Bridge) HandleActivity(ctx context.Context, act *connector.Activity) error {
	switch act.Type {
	case connector.ActivityMessage:
		return b.onMessage(ctx, act)
	case connector.ActivityMembersAdded:
		return b.onMembersAdded(ctx, act)
	case connector.ActivityChannelCreated:
		name := ""
		if act.Channel != nil {
			name = act.Channel.Name
		}
		b.logger.Info("channel created", "channel", name)
		return nil
	default:
		b.logger.Debug("ignoring activity", "type", act.Type)
		return nil
	}
}

// onMessage runs the inbound message turn: dedupe, capture the
// conversation reference, resolve the sender, clean the text, classify.
// External failures degrade; the turn itself never fails the request.
func (b *Bridge) onMessage(ctx context.Context, act *connector.Activity) error {
	if act.ID != "" {
		key := act.ChannelID + ":" + act.ID
		if b.seen.Seen(key) {
			b.logger.Debug("duplicate activity ignored", "activity_id", act.ID)
			return nil
		}
	}

	ref := b.refFromActivity(act)
	user := b.resolveSender(ctx, act)

	b.mu.Lock()
	b.lastRef = ref
	b.lastUser = user
	b.mu.Unlock()

	clean := CleanText(act)
	if clean == "" {
		return nil
	}

	if sig := b.opts.Bot.SignaturePrefix; sig != "" && strings.HasPrefix(clean, sig) {
		b.logger.Debug("own message ignored", "text", truncate(clean, 50))
		return nil
	}

	if IsTrigger(clean, b.opts.Keywords) {
		b.startJob(ctx, user)
		return nil
	}

	key := b.mailboxKey(act)
	if !b.box.Enqueue(key, clean) {
		b.logger.Warn("mailbox full, message dropped", "key", key)
		return nil
	}
	b.logger.Info("message enqueued", "key", key, "text", truncate(clean, 50))
	return nil
}

// resolveSender asks the platform directory for the sender's identity.
// Lookup failure must not abort the turn: it degrades to the
// platform-native id and name from the activity itself.
func (b *Bridge) resolveSender(ctx context.Context, act *connector.Activity) *connector.UserInfo {
	if act.From.AADObjectID != "" {
		user, err := b.channel.ResolveUser(ctx, act.From.AADObjectID)
		if err == nil {
			return user
		}
		b.logger.Warn("user lookup failed, using platform identity",
			"object_id", act.From.AADObjectID,
			"error", err,
		)
	}
	return &connector.UserInfo{ID: act.From.ID, Name: act.From.Name}
}

// startJob runs the trigger path: best-effort acknowledgement, then a
// fire-and-forget job start carrying the resolved identity and the
// polling-interval hint.
func (b *Bridge) startJob(ctx context.Context, user *connector.UserInfo) {
	if err := b.SendToCurrentConversation(ctx, b.opts.Bot.AckMessage); err != nil {
		b.logger.Warn("acknowledgement failed", "error", err)
	}

	args := map[string]any{
		"g_polling_sec":   int(b.opts.PollingInterval.Seconds()),
		"g_task_owner_id": b.opts.TaskOwnerID,
		"g_user_info": map[string]string{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	}

	if _, err := b.runner.StartJob(ctx, b.credential(), args); err != nil {
		b.logger.Error("job start failed", "user", user.ID, "error", err)
	}
}

// refFromActivity builds the conversation reference for an inbound
// activity, honoring the configured service URL override.
func (b *Bridge) refFromActivity(act *connector.Activity) *connector.ConversationRef {
	ref := connector.RefFromActivity(act)
	if b.opts.Bot.ServiceURL != "" {
		ref.ServiceURL = b.opts.Bot.ServiceURL
	}
	return ref
}

// onMembersAdded greets every added member except the bot itself.
func (b *Bridge) onMembersAdded(ctx context.Context, act *connector.Activity) error {
	ref := b.refFromActivity(act)

	for _, member := range act.MembersAdded {
		if member.ID == act.Recipient.ID {
			continue
		}

		greetRef := *ref
		greetRef.User = member

		body, format := b.render(b.opts.Bot.Greeting)
		if err := b.channel.ContinueConversation(ctx, &greetRef, body, format); err != nil {
			b.logger.Warn("greeting failed", "member", member.ID, "error", err)
		}
	}
	return nil
}

// mailboxKey selects the buffer key for the payload path, matching the
// mode the mailbox service runs in.
func (b *Bridge) mailboxKey(act *connector.Activity) string {
	if b.opts.MailboxMode == config.ModeKeyed && act.Conversation.ID != "" {
		return act.Conversation.ID
	}
	return b.opts.DefaultKey
}

// SendToCurrentConversation delivers text into the most recent
// conversation. With no stored reference it logs and returns nil — by
// contract this send fails silently.
func (b *Bridge) SendToCurrentConversation(ctx context.Context, text string) error {
	ref := b.CurrentRef()
	if ref == nil {
		b.logger.Warn("no conversation reference yet, message dropped")
		return nil
	}

	body, format := b.render(text)
	return b.channel.ContinueConversation(ctx, ref, body, format)
}

// SendToUser opens (or reuses) a 1:1 conversation with the user and
// delivers text. Requires at least one prior inbound message to know the
// service endpoint and bot identity.
func (b *Bridge) SendToUser(ctx context.Context, userID, text string) error {
	ref := b.CurrentRef()
	if ref == nil {
		return fmt.Errorf("no conversation reference yet; cannot address user %s", userID)
	}

	convID, err := b.channel.CreateConversation(ctx, ref, userID)
	if err != nil {
		return fmt.Errorf("creating conversation with %s: %w", userID, err)
	}

	userRef := *ref
	userRef.Conversation = connector.ConversationAccount{
		ID:               convID,
		TenantID:         b.opts.Bot.TenantID,
		ConversationType: "personal",
	}
	userRef.User = connector.Account{ID: userID}

	body, format := b.render(text)
	if err := b.channel.ContinueConversation(ctx, &userRef, body, format); err != nil {
		return err
	}

	b.logger.Info("message sent to user", "user", userID)
	return nil
}

// atTag matches platform mention markup like <at>relay</at>.
var atTag = regexp.MustCompile(`(?s)<at[^>]*>.*?</at>`)

// CleanText strips the bot's @-mention from an inbound message. Both the
// markup form and a plain "@name" prefix are removed. If stripping leaves
// nothing, the raw text is returned unchanged.
func CleanText(act *connector.Activity) string {
	text := act.Text

	clean := atTag.ReplaceAllString(text, "")
	if name := act.Recipient.Name; name != "" {
		clean = strings.TrimPrefix(strings.TrimSpace(clean), "@"+name)
	}
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return strings.TrimSpace(text)
	}
	return clean
}

// IsTrigger reports whether text contains any of the trigger keywords.
// Case-sensitive substring match; a pure function of its inputs.
func IsTrigger(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
