package review

import (
	"fmt"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// Template is the owner notification for a target status
type Template struct {
	Title   string
	Message string // format string taking the project title
}

var templates = map[domain.Status]Template{
	domain.StatusAccepted: {Title: "Project accepted", Message: "Your project \"%s\" has been accepted."},
	domain.StatusRejected: {Title: "Project rejected", Message: "Your project \"%s\" has been rejected."},
	domain.StatusPending:  {Title: "Project back under review", Message: "Your project \"%s\" is pending review again."},
}

// OwnerNotification renders the notification sent to a project's owner when
// it moves to status.
func OwnerNotification(p *domain.Project, status domain.Status) *domain.Notification {
	tpl, ok := templates[status]
	if !ok {
		tpl = Template{Title: "Project updated", Message: "Your project \"%s\" has been updated."}
	}
	return &domain.Notification{
		UserID:  p.UserID,
		Title:   tpl.Title,
		Message: fmt.Sprintf(tpl.Message, p.Title),
	}
}

// statusComment is the comment recorded for a direct status change
func statusComment(from, to domain.Status) string {
	if from == to {
		return fmt.Sprintf("Status confirmed as %s.", to)
	}
	return fmt.Sprintf("Status changed from %s to %s.", from, to)
}
