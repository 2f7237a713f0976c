package googlecalendar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

const (
	defaultCalendarID = "primary"
	defaultMaxResults = 10
)

type eventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventInfo struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	HTMLLink    string    `json:"htmlLink"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

// listEventsTool lists events from one calendar in a date range.
type listEventsTool struct {
	provider *Provider
}

func (t *listEventsTool) Name() string { return "list-events" }

func (t *listEventsTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	calendarID := p.String("calendar_id", defaultCalendarID)
	singleEvents := p.Bool("single_events", true)

	query := url.Values{
		"maxResults":   []string{strconv.Itoa(p.Int("max_results", defaultMaxResults))},
		"singleEvents": []string{strconv.FormatBool(singleEvents)},
		"showDeleted":  []string{strconv.FormatBool(p.Bool("show_deleted", false))},
	}
	// orderBy=startTime is only valid when recurring events are expanded.
	if singleEvents {
		query.Set("orderBy", p.String("order_by", "startTime"))
	}
	if timeMin := p.String("time_min", ""); timeMin != "" {
		query.Set("timeMin", timeMin)
	}
	if timeMax := p.String("time_max", ""); timeMax != "" {
		query.Set("timeMax", timeMax)
	}

	resp, err := t.provider.client.Get(ctx, "calendars/"+url.PathEscape(calendarID)+"/events", query)
	if err != nil {
		return nil, httpx.WrapError(Name, "list-events", calendarID, "", err)
	}
	var result struct {
		Items []eventInfo `json:"items"`
	}
	if err := resp.JSON(&result); err != nil {
		return nil, httpx.WrapError(Name, "list-events", calendarID, "", err)
	}

	events := make([]map[string]any, 0, len(result.Items))
	for _, e := range result.Items {
		events = append(events, eventJSON(e))
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(map[string]any{
			"calendar_id": calendarID,
			"events":      events,
			"count":       len(events),
		}),
		tool.TextMessage(fmt.Sprintf("Found %d events in calendar %s", len(events), calendarID)),
	), nil
}

// createEventTool creates one event.
type createEventTool struct {
	provider *Provider
}

func (t *createEventTool) Name() string { return "create-event" }

func (t *createEventTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	title := p.String("title", "")
	if title == "" {
		return nil, datasource.ConfigErrorf(Name, "event title is required")
	}
	startTime := p.String("start_time", "")
	if startTime == "" {
		return nil, datasource.ConfigErrorf(Name, "event start_time is required")
	}

	calendarID := p.String("calendar_id", defaultCalendarID)
	allDay := p.Bool("all_day", false)
	timeZone := p.String("time_zone", "")
	endTime := p.String("end_time", "")

	body := map[string]any{"summary": title}
	if desc := p.String("description", ""); desc != "" {
		body["description"] = desc
	}
	if loc := p.String("location", ""); loc != "" {
		body["location"] = loc
	}
	if visibility := p.String("visibility", ""); visibility != "" && visibility != "default" {
		body["visibility"] = visibility
	}
	if attendees := p.Strings("attendees"); len(attendees) > 0 {
		list := make([]map[string]string, 0, len(attendees))
		for _, email := range attendees {
			list = append(list, map[string]string{"email": email})
		}
		body["attendees"] = list
	}

	start, end := eventTimes(startTime, endTime, allDay, timeZone)
	body["start"] = start
	body["end"] = end

	path := "calendars/" + url.PathEscape(calendarID) + "/events"
	if p.Bool("send_notifications", true) {
		path += "?sendNotifications=true"
	}

	resp, err := t.provider.client.Post(ctx, path, body)
	if err != nil {
		return nil, httpx.WrapError(Name, "create-event", calendarID, title, err)
	}
	var created eventInfo
	if err := resp.JSON(&created); err != nil {
		return nil, httpx.WrapError(Name, "create-event", calendarID, title, err)
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(eventJSON(created)),
		tool.TextMessage(fmt.Sprintf("Event %q created in calendar %s", created.Summary, calendarID)),
		tool.VariableMessage("event_id", created.ID),
	), nil
}

// eventTimes builds the start and end blocks. All-day events use dates;
// timed events use RFC3339 datetimes. A missing end defaults to the start
// (the API treats it as the minimum duration).
func eventTimes(startTime, endTime string, allDay bool, timeZone string) (eventTime, eventTime) {
	if endTime == "" {
		endTime = startTime
	}
	if allDay {
		return eventTime{Date: datePart(startTime)}, eventTime{Date: datePart(endTime)}
	}
	start := eventTime{DateTime: startTime, TimeZone: timeZone}
	end := eventTime{DateTime: endTime, TimeZone: timeZone}
	return start, end
}

// datePart truncates an RFC3339 timestamp to its date.
func datePart(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i > 0 {
		return ts[:i]
	}
	return ts
}

func eventJSON(e eventInfo) map[string]any {
	start := e.Start.DateTime
	if start == "" {
		start = e.Start.Date
	}
	end := e.End.DateTime
	if end == "" {
		end = e.End.Date
	}
	return map[string]any{
		"id":          e.ID,
		"title":       e.Summary,
		"description": e.Description,
		"location":    e.Location,
		"status":      e.Status,
		"start":       start,
		"end":         end,
		"url":         e.HTMLLink,
	}
}
