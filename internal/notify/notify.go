// Package notify turns report lifecycle events into notifications for
// the people who have to act on them.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemreport/apiserver/internal/access"
	"github.com/stemreport/apiserver/internal/store"
	"github.com/stemreport/apiserver/types"
)

// UserDirectory looks up accounts.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
}

// Notification is one message addressed to one user.
type Notification struct {
	RecipientID string
	Email       string
	Event       types.ReportEventType
	ReportID    string
	Message     string
}

// Notifier resolves the recipients of report events and logs the
// notifications it would deliver.
type Notifier struct {
	users  UserDirectory
	logger zerolog.Logger
}

func NewNotifier(users UserDirectory, logger zerolog.Logger) *Notifier {
	return &Notifier{users: users, logger: logger}
}

// Handle logs one notification per recipient of event. Events of deleted
// submitters are dropped; other lookup failures are returned for redelivery.
func (n *Notifier) Handle(ctx context.Context, event types.ReportEvent) error {
	notifications, err := n.Resolve(ctx, event)
	if errors.Is(err, store.ErrNotFound) {
		n.logger.Warn().Err(err).Str("report_id", event.ReportID).Msg("dropping event of unknown submitter")
		return nil
	}
	if err != nil {
		return err
	}
	for _, msg := range notifications {
		n.logger.Info().
			Str("recipient", msg.RecipientID).
			Str("email", msg.Email).
			Str("event", string(msg.Event)).
			Str("report_id", msg.ReportID).
			Msg(msg.Message)
	}
	return nil
}

// Resolve lists the notifications for event. Submissions and resubmissions
// go to every reviewer whose scope covers the submitter; review decisions
// go back to the submitter.
func (n *Notifier) Resolve(ctx context.Context, event types.ReportEvent) ([]Notification, error) {
	submitter, err := n.users.GetByID(ctx, event.SubmittedBy)
	if err != nil {
		return nil, fmt.Errorf("load submitter %s: %w", event.SubmittedBy, err)
	}

	switch event.Type {
	case types.EventReportSubmitted, types.EventReportEdited:
		users, err := n.users.List(ctx)
		if err != nil {
			return nil, err
		}
		var out []Notification
		for _, u := range users {
			if u.ID == submitter.ID || !access.Allowed(u.Role, access.ApproveReport) {
				continue
			}
			if !access.Can(u.Role, access.ApproveReport, access.ScopeRelation(u.StateName, submitter.StateName)) {
				continue
			}
			out = append(out, Notification{
				RecipientID: u.ID,
				Email:       u.Email,
				Event:       event.Type,
				ReportID:    event.ReportID,
				Message:     fmt.Sprintf("report for %s by %s awaits review", event.Period, submitter.Name),
			})
		}
		return out, nil
	case types.EventReportApproved:
		return []Notification{toSubmitter(submitter, event, "your report was approved")}, nil
	case types.EventReportRevisionRequested:
		message := "your report needs revision"
		if event.Note != "" {
			message += ": " + event.Note
		}
		return []Notification{toSubmitter(submitter, event, message)}, nil
	default:
		return nil, nil
	}
}

func toSubmitter(submitter types.User, event types.ReportEvent, message string) Notification {
	return Notification{
		RecipientID: submitter.ID,
		Email:       submitter.Email,
		Event:       event.Type,
		ReportID:    event.ReportID,
		Message:     message,
	}
}
