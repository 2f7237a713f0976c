package frontapp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 100
)

type conversationInfo struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	CreatedAt float64 `json:"created_at"`
	Assignee  *struct {
		Email string `json:"email"`
	} `json:"assignee"`
	Recipient *struct {
		Handle string `json:"handle"`
	} `json:"recipient"`
}

type channelInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// listConversationsTool searches and filters conversations.
type listConversationsTool struct {
	provider *Provider
}

func (t *listConversationsTool) Name() string { return "list-conversations" }

func (t *listConversationsTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	limit := p.Int("limit", defaultConversationLimit)
	if limit > maxConversationLimit {
		limit = maxConversationLimit
	}

	query := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if q := p.String("search_query", ""); q != "" {
		query.Set("q", q)
	}
	if status := p.String("status", ""); status != "" {
		query.Set("status", status)
	}
	if inbox := p.String("inbox_id", ""); inbox != "" {
		query.Set("inbox_id", inbox)
	}
	if assignee := p.String("assignee_id", ""); assignee != "" {
		query.Set("assignee_id", assignee)
	}
	if tags := p.Strings("tag_ids"); len(tags) > 0 {
		query.Set("tag_ids", strings.Join(tags, ","))
	}

	resp, err := t.provider.client.Get(ctx, "conversations", query)
	if err != nil {
		return nil, httpx.WrapError(Name, "list-conversations", "", "", err)
	}
	var result struct {
		Results []conversationInfo `json:"_results"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, httpx.WrapError(Name, "list-conversations", "", "", err)
	}

	conversations := make([]map[string]any, 0, len(result.Results))
	for _, c := range result.Results {
		entry := map[string]any{
			"id":         c.ID,
			"subject":    c.Subject,
			"status":     c.Status,
			"created_at": c.CreatedAt,
		}
		if c.Assignee != nil {
			entry["assignee"] = c.Assignee.Email
		}
		if c.Recipient != nil {
			entry["recipient"] = c.Recipient.Handle
		}
		conversations = append(conversations, entry)
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(map[string]any{
			"conversations": conversations,
			"count":         len(conversations),
		}),
		tool.TextMessage(fmt.Sprintf("Found %d conversations", len(conversations))),
	), nil
}

// sendMessageTool sends an email through the workspace's SMTP channel.
type sendMessageTool struct {
	provider *Provider
}

func (t *sendMessageTool) Name() string { return "send-message" }

func (t *sendMessageTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	recipient := p.String("recipient_email", "")
	if recipient == "" {
		return nil, datasource.ConfigErrorf(Name, "recipient_email is required")
	}
	subject := p.String("subject", "")
	if subject == "" {
		return nil, datasource.ConfigErrorf(Name, "subject is required")
	}
	body := p.String("body", "")
	if body == "" {
		return nil, datasource.ConfigErrorf(Name, "body is required")
	}

	channelID := p.String("channel_id", "")
	if channelID == "" {
		var err error
		channelID, err = t.emailChannel(ctx)
		if err != nil {
			return nil, err
		}
	}

	payload := map[string]any{
		"to":      []string{recipient},
		"subject": subject,
		"body":    body,
		"text":    body,
	}
	if cc := p.Strings("cc_emails"); len(cc) > 0 {
		payload["cc"] = cc
	}
	if bcc := p.Strings("bcc_emails"); len(bcc) > 0 {
		payload["bcc"] = bcc
	}

	t.provider.logger.Debug("sending front message",
		zap.String("channel", channelID),
		zap.String("recipient", recipient))

	resp, err := t.provider.client.Post(ctx, "channels/"+channelID+"/messages", payload)
	if err != nil {
		return nil, httpx.WrapError(Name, "send-message", "", channelID, err)
	}
	var sent struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
	}
	if err := resp.JSON(&sent); err != nil {
		return nil, httpx.WrapError(Name, "send-message", "", channelID, err)
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(map[string]any{
			"message_id":      sent.ID,
			"conversation_id": sent.ConversationID,
			"channel_id":      channelID,
			"recipient":       recipient,
			"subject":         subject,
		}),
		tool.TextMessage(fmt.Sprintf("Message sent to %s via channel %s", recipient, channelID)),
	), nil
}

// emailChannel finds the first SMTP channel in the workspace.
func (t *sendMessageTool) emailChannel(ctx context.Context) (string, error) {
	resp, err := t.provider.client.Get(ctx, "channels", nil)
	if err != nil {
		return "", httpx.WrapError(Name, "send-message", "", "", err)
	}
	var result struct {
		Results []channelInfo `json:"_results"`
	}
	if err := resp.JSON(&result); err != nil {
		return "", httpx.WrapError(Name, "send-message", "", "", err)
	}
	for _, ch := range result.Results {
		if ch.Type == "smtp" {
			return ch.ID, nil
		}
	}
	return "", &datasource.ConnectorError{
		Connector: Name,
		Op:        "send-message",
		Detail:    "no email channels available, configure an email channel in Front",
		Err:       datasource.ErrUnsupportedState,
	}
}
