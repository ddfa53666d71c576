package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/golang/glog"

	"projx.dev/social/client"
	"projx.dev/social/media"
	"projx.dev/social/models"
)

var (
	ErrChatClosed = errors.New("chat is not open")
	ErrEmptySend  = fmt.Errorf("%w: message is empty", client.ErrValidation)
)

type ChatAPI interface {
	Messages(ctx context.Context, partnerID int) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (models.ChatMessage, error)
}

// Conversation is the realtime channel as the chat screen sees it.
type Conversation interface {
	Join(partnerID int) error
	Leave() error
	OnMessage(fn func(models.ChatMessage)) (remove func())
}

// Chat is one open conversation screen. Pushed messages are shown only when
// they are between the current user and the open partner.
type Chat struct {
	api      ChatAPI
	channel  Conversation
	uploader *media.Uploader
	toaster  Toaster
	me       int

	mu        sync.Mutex
	open      bool
	partnerID int
	messages  []models.ChatMessage
	seen      map[int]bool
	detach    func()
	onChange  []func()
}

func NewChat(api ChatAPI, channel Conversation, uploader *media.Uploader, me int, toaster Toaster) *Chat {
	if toaster == nil {
		toaster = LogToaster{}
	}
	return &Chat{
		api:      api,
		channel:  channel,
		uploader: uploader,
		toaster:  toaster,
		me:       me,
		seen:     map[int]bool{},
	}
}

func (c *Chat) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Chat) changed() {
	c.mu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Open loads the history with partnerID, joins the conversation and starts
// taking pushed messages.
func (c *Chat) Open(ctx context.Context, partnerID int) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return fmt.Errorf("chat with %d is still open", c.partnerID)
	}
	c.mu.Unlock()

	history, err := c.api.Messages(ctx, partnerID)
	if err != nil {
		report(c.toaster, "chat", err)
		return err
	}

	c.mu.Lock()
	c.partnerID = partnerID
	c.messages = nil
	c.seen = map[int]bool{}
	for _, m := range history {
		c.insert(m)
	}
	c.open = true
	c.mu.Unlock()

	detach := c.channel.OnMessage(c.receive)
	if err := c.channel.Join(partnerID); err != nil {
		detach()
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		report(c.toaster, "chat", err)
		return err
	}

	c.mu.Lock()
	c.detach = detach
	c.mu.Unlock()
	c.changed()
	return nil
}

// Close detaches from pushes and leaves the conversation.
func (c *Chat) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	if detach != nil {
		detach()
	}
	return c.channel.Leave()
}

func (c *Chat) Partner() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partnerID
}

func (c *Chat) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

func (c *Chat) receive(m models.ChatMessage) {
	c.mu.Lock()
	if !c.open || !m.Between(c.me, c.partnerID) {
		partner := c.partnerID
		c.mu.Unlock()
		glog.V(2).Infof("[chat] dropping message %d (%d -> %d) outside conversation with %d",
			m.ID, m.SenderID, m.ReceiverID, partner)
		return
	}
	added := c.insert(m)
	c.mu.Unlock()
	if added {
		c.changed()
	}
}

// insert keeps messages ordered by timestamp and drops duplicates, since a
// sent message comes back both in the response and as a push.
func (c *Chat) insert(m models.ChatMessage) bool {
	if m.ID != 0 {
		if c.seen[m.ID] {
			return false
		}
		c.seen[m.ID] = true
	}
	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].Timestamp.After(m.Timestamp)
	})
	c.messages = append(c.messages, models.ChatMessage{})
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
	return true
}

// Send uploads the attachment first, if any. A failed upload fails the whole
// send, so no message is stored with a broken media link.
func (c *Chat) Send(ctx context.Context, text string, attachment *media.Preview) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return models.ChatMessage{}, ErrEmptySend
	}
	c.mu.Lock()
	open, partnerID := c.open, c.partnerID
	c.mu.Unlock()
	if !open {
		return models.ChatMessage{}, ErrChatClosed
	}

	req := models.SendMessageRequest{ReceiverID: partnerID, Message: text}
	if attachment != nil {
		if c.uploader == nil {
			return models.ChatMessage{}, errors.New("attachments are not supported by this chat")
		}
		res, err := c.uploader.Upload(ctx, attachment)
		if err != nil {
			report(c.toaster, "chat", fmt.Errorf("upload %s: %w", attachment.Name, err))
			return models.ChatMessage{}, err
		}
		req.MediaURL = res.MediaURL
		req.MediaType = res.MediaType
	}

	msg, err := c.api.SendMessage(ctx, req)
	if err != nil {
		report(c.toaster, "chat", err)
		return models.ChatMessage{}, err
	}
	c.receive(msg)
	return msg, nil
}
