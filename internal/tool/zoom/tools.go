package zoom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

const (
	// scheduledMeeting is the Zoom meeting type for a one-off scheduled
	// meeting.
	scheduledMeeting = 2

	defaultDuration = 60
	defaultPageSize = 30
	maxPageSize     = 300
)

type meetingInfo struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	Topic     string `json:"topic"`
	Type      int    `json:"type"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	Duration  int    `json:"duration"`
	Timezone  string `json:"timezone"`
	Password  string `json:"password"`
	StartURL  string `json:"start_url"`
	JoinURL   string `json:"join_url"`
	CreatedAt string `json:"created_at"`
	Agenda    string `json:"agenda"`
}

// createMeetingTool creates a meeting for the authorized user.
type createMeetingTool struct {
	provider *Provider
}

func (t *createMeetingTool) Name() string { return "create-meeting" }

func (t *createMeetingTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	topic := p.String("topic", "")
	if topic == "" {
		return nil, datasource.ConfigErrorf(Name, "meeting topic is required")
	}

	body := map[string]any{
		"topic":    topic,
		"type":     p.Int("type", scheduledMeeting),
		"duration": p.Int("duration", defaultDuration),
		"settings": map[string]any{
			"waiting_room":     p.Bool("waiting_room", true),
			"join_before_host": p.Bool("join_before_host", false),
			"mute_upon_entry":  p.Bool("mute_upon_entry", true),
			"auto_recording":   p.String("auto_recording", "none"),
		},
	}
	if start := p.String("start_time", ""); start != "" {
		body["start_time"] = start
		body["timezone"] = p.String("timezone", "UTC")
	}
	if password := p.String("password", ""); password != "" {
		body["password"] = password
	}
	if agenda := p.String("agenda", ""); agenda != "" {
		body["agenda"] = agenda
	}

	t.provider.logger.Debug("creating zoom meeting", zap.String("topic", topic))

	resp, err := t.provider.client.Post(ctx, "users/me/meetings", body)
	if err != nil {
		return nil, httpx.WrapError(Name, "create-meeting", "", topic, err)
	}
	var meeting meetingInfo
	if err := resp.JSON(&meeting); err != nil {
		return nil, httpx.WrapError(Name, "create-meeting", "", topic, err)
	}

	summary := fmt.Sprintf("Meeting %q created (ID %d, %d minutes). Join: %s",
		meeting.Topic, meeting.ID, meeting.Duration, meeting.JoinURL)

	return tool.MessageStreamOf(
		tool.JSONMessage(meetingJSON(meeting)),
		tool.TextMessage(summary),
		tool.VariableMessage("join_url", meeting.JoinURL),
	), nil
}

// listMeetingsTool lists the authorized user's meetings.
type listMeetingsTool struct {
	provider *Provider
}

func (t *listMeetingsTool) Name() string { return "list-meetings" }

func (t *listMeetingsTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	pageSize := p.Int("page_size", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := url.Values{
		"type":        []string{p.String("type", "scheduled")},
		"page_size":   []string{strconv.Itoa(pageSize)},
		"page_number": []string{strconv.Itoa(p.Int("page_number", 1))},
	}
	if from := p.String("from_date", ""); from != "" {
		query.Set("from", from)
	}
	if to := p.String("to_date", ""); to != "" {
		query.Set("to", to)
	}

	resp, err := t.provider.client.Get(ctx, "users/me/meetings", query)
	if err != nil {
		return nil, httpx.WrapError(Name, "list-meetings", "", "", err)
	}
	var result struct {
		Meetings     []meetingInfo `json:"meetings"`
		TotalRecords int           `json:"total_records"`
		PageCount    int           `json:"page_count"`
		PageSize     int           `json:"page_size"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, httpx.WrapError(Name, "list-meetings", "", "", err)
	}

	meetings := make([]map[string]any, 0, len(result.Meetings))
	for _, m := range result.Meetings {
		meetings = append(meetings, meetingJSON(m))
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(map[string]any{
			"meetings":      meetings,
			"total_records": result.TotalRecords,
			"page_count":    result.PageCount,
		}),
		tool.TextMessage(fmt.Sprintf("Found %d meetings (%d on this page)", result.TotalRecords, len(result.Meetings))),
	), nil
}

func meetingJSON(m meetingInfo) map[string]any {
	return map[string]any{
		"meeting_id": m.ID,
		"uuid":       m.UUID,
		"topic":      m.Topic,
		"type":       m.Type,
		"status":     m.Status,
		"start_time": m.StartTime,
		"duration":   m.Duration,
		"timezone":   m.Timezone,
		"password":   m.Password,
		"start_url":  m.StartURL,
		"join_url":   m.JoinURL,
		"created_at": m.CreatedAt,
	}
}
