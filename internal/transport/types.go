package transport

import "context"

// ChatTarget identifies a message destination. ChatID is the opaque
// recipient identifier handed out by the messaging platform; ThreadID is
// the optional forum topic thread (0 if none).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef points at a message that was sent (for replies).
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string // "", "Markdown", "HTML"
	DisablePreview bool
	ReplyTo        int // message id to reply to (0 = none)
}

// Blob is media content read fully into memory, plus a filename hint.
type Blob struct {
	Name string
	Data []byte
}

// Media is either an in-memory blob or a remote URL passed through to the
// platform unmodified. Exactly one of the two is set.
type Media struct {
	Blob *Blob
	URL  string
}

// Identity describes the authenticated bot account.
type Identity struct {
	ID       int64
	Username string
}

// Adapter is the outbound message-send capability. Implementations must
// be safe for concurrent use; a single shared instance is reused across
// all sends.
//
// Errors returned by an Adapter are classified three ways:
//   - *RateLimitedError: the platform asked us to wait before retrying
//   - permanent (IsPermanent): rejected request, retrying cannot help
//   - anything else: transient transport failure, safe to retry
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, media Media, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, media Media, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, media Media, caption string, opt *SendOptions) (MessageRef, error)
	Identity(ctx context.Context) (Identity, error)
}
