// Package backend holds the flag, config and conversation plumbing shared by
// the chatstream commands that talk to a running backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/client"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

// flagKeys are the registry flags every client command carries.
var flagKeys = []string{
	config.FlagAPITarget,
	config.FlagToken,
	config.FlagTimeout,
}

// Target is where and how a command reaches the backend.
type Target struct {
	APITarget string
	Token     string
	Timeout   string

	// ConfigDir overrides the .chatstream/ directory lookup.
	ConfigDir string
}

// AddFlags registers --api-target, --token and --timeout on cmd.
func AddFlags(cmd *cobra.Command, t *Target) {
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &t.APITarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagToken, &t.Token)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &t.Timeout)
}

// Load resolves the target through viper so flags win over CHATSTREAM_*
// environment variables, which win over config.toml. Call it from PreRunE.
func (t *Target) Load(cmd *cobra.Command) error {
	t.ConfigDir, _ = cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(t.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	cfg := config.FromViper(v)
	t.APITarget = cfg.Client.APITarget
	t.Token = cfg.Client.Token
	t.Timeout = cfg.Client.Timeout
	return nil
}

// Client builds a backend client from the target.
func (t *Target) Client(log *slog.Logger) (*client.Client, error) {
	if log == nil {
		log = logger.Nop()
	}

	opts := []client.Option{client.WithLogger(log)}
	if t.Token != "" {
		opts = append(opts, client.WithToken(t.Token))
	}
	if strings.TrimSpace(t.Timeout) != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", t.Timeout, err)
		}
		opts = append(opts, client.WithTimeout(d))
	}

	return client.New(t.APITarget, opts...)
}

// Conversations is the part of the backend client used to pick a
// conversation.
type Conversations interface {
	CreateConversation(ctx context.Context, title string) (conversation.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// Open returns the transcript the front end should start on. An explicit
// conversationID is loaded as is; otherwise the conversation last used
// against this backend is resumed, falling back to a new one when it is
// gone. The chosen conversation is remembered in session.json.
func (t *Target) Open(ctx context.Context, convs Conversations, conversationID string, fresh bool) (*conversation.Transcript, error) {
	ddm := dotdir.NewManager()

	if conversationID == "" && !fresh {
		state, err := ddm.LoadSession(t.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("loading session state: %w", err)
		}
		if last, ok := state.LastConversation(t.APITarget); ok {
			tr, err := Load(ctx, convs, last)
			switch {
			case err == nil:
				return tr, t.Remember(last)
			case !IsNotFound(err):
				return nil, err
			}
		}
	}

	var (
		tr  *conversation.Transcript
		err error
	)
	if conversationID != "" {
		tr, err = Load(ctx, convs, conversationID)
	} else {
		tr, err = New(ctx, convs, "")
	}
	if err != nil {
		return nil, err
	}

	return tr, t.Remember(tr.ConversationID())
}

// Remember records conversationID as the last one used against the target.
func (t *Target) Remember(conversationID string) error {
	if err := dotdir.NewManager().RememberConversation(t.APITarget, conversationID, t.ConfigDir); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	return nil
}

// Load fetches a conversation's history into a transcript.
func Load(ctx context.Context, convs Conversations, conversationID string) (*conversation.Transcript, error) {
	msgs, err := convs.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	return conversation.NewTranscript(conversationID, msgs), nil
}

// New creates an empty conversation on the backend.
func New(ctx context.Context, convs Conversations, title string) (*conversation.Transcript, error) {
	conv, err := convs.CreateConversation(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conversation.NewTranscript(conv.ID, nil), nil
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var terr *client.TransportError
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

// Describe turns a failed request into a message for the user.
func Describe(err error) string {
	var terr *client.TransportError
	switch {
	case errors.Is(err, client.ErrAuthRequired):
		return "authentication required: sign in again or set client.token"
	case errors.As(err, &terr) && terr.StatusCode == 0:
		return fmt.Sprintf("backend unreachable: %v", terr.Cause)
	default:
		return err.Error()
	}
}
