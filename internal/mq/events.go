package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stemreport/apiserver/types"
)

// Message attributes set on every report event.
const (
	AttrContentType = "content-type"
	AttrEventType   = "event-type"
	AttrReportID    = "report-id"

	contentTypeJSON = "application/json"
)

// ReportEvents publishes and consumes report lifecycle events on one channel.
type ReportEvents struct {
	mq      *MQ
	channel string
}

func NewReportEvents(m *MQ, channel string) *ReportEvents {
	return &ReportEvents{mq: m, channel: channel}
}

// PublishReportEvent encodes event as JSON and publishes it.
func (e *ReportEvents) PublishReportEvent(ctx context.Context, event types.ReportEvent) error {
	data, err := EncodeReportEvent(event)
	if err != nil {
		return err
	}
	_, err = e.mq.Publish(ctx, e.channel, data, map[string]string{
		AttrContentType: contentTypeJSON,
		AttrEventType:   string(event.Type),
		AttrReportID:    event.ReportID,
	})
	return err
}

// Subscribe decodes every message on the channel and passes it to handle.
// Undecodable messages are reported to onInvalid and acknowledged, since a
// redelivery would fail the same way.
func (e *ReportEvents) Subscribe(ctx context.Context, handle func(context.Context, types.ReportEvent) error, onInvalid func(Message, error)) error {
	return e.mq.Subscribe(ctx, e.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeReportEvent(msg.Data)
		if err != nil {
			if onInvalid != nil {
				onInvalid(msg, err)
			}
			return nil
		}
		return handle(ctx, event)
	})
}

func EncodeReportEvent(event types.ReportEvent) ([]byte, error) {
	if event.Type == "" || event.ReportID == "" {
		return nil, errors.New("report event requires a type and a report id")
	}
	return json.Marshal(event)
}

func DecodeReportEvent(data []byte) (types.ReportEvent, error) {
	var event types.ReportEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return types.ReportEvent{}, fmt.Errorf("decode report event: %w", err)
	}
	if event.Type == "" || event.ReportID == "" {
		return types.ReportEvent{}, errors.New("decode report event: missing type or report id")
	}
	return event, nil
}
