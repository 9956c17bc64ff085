package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/models"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// MailService renders and dispatches the two outbound mail shapes: operator
// failure reports and per-reviewer share digests.
type MailService struct {
	mailer remote.Mailer
	cfg    *config.Config
}

func NewMailService(mailer remote.Mailer, cfg *config.Config) *MailService {
	return &MailService{mailer: mailer, cfg: cfg}
}

// SendFailureReport tells the operators a run hit a top-level fault.
func (s *MailService) SendFailureReport(ctx context.Context, functionName, details string) error {
	if len(s.cfg.OperatorRecipients) == 0 {
		return fmt.Errorf("no operator recipients configured")
	}

	date := time.Now().UTC().Format("2006-01-02")
	var body strings.Builder
	fmt.Fprintf(&body, "Dear Developers, <br /><br /> <b>Failed case(s)</b> of %s were detected on %s. Details as below: <br /><br />", functionName, date)
	if s.cfg.RunLogListURL != "" {
		fmt.Fprintf(&body, "Run log: %s <br />", s.cfg.RunLogListURL)
	}
	if s.cfg.RepoURL != "" {
		fmt.Fprintf(&body, "Repository: %s <br />", s.cfg.RepoURL)
	}
	fmt.Fprintf(&body, "<p> Status: Failed <br /> Details: %s </p> <br />", html.EscapeString(details))
	body.WriteString("<p> Please check. </p>")

	return s.mailer.Send(ctx, remote.Message{
		To:       s.cfg.OperatorRecipients,
		CC:       s.cfg.OperatorCC,
		Subject:  fmt.Sprintf("Failed case(s) detected when running function: %s", functionName),
		HTMLBody: body.String(),
	})
}

// SendDigest sends one reviewer their accumulated share records. Callers must
// not invoke this with an empty digest.
func (s *MailService) SendDigest(ctx context.Context, digest *models.ReviewerDigest) error {
	if len(digest.Records) == 0 {
		return fmt.Errorf("digest for %s has no records", digest.ReviewerEmail)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Dear reviewer,</p><p>%d new recording(s) are ready for checking in list <b>%s</b>:</p>",
		len(digest.Records), html.EscapeString(digest.ListName))
	body.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>File</th><th>Duration</th><th>Link</th></tr>")
	for _, rec := range digest.Records {
		fmt.Fprintf(&body, "<tr><td>%s</td><td>%s</td><td><a href=\"%s\">open</a></td></tr>",
			html.EscapeString(rec.FileName), rec.Duration, rec.Link)
	}
	body.WriteString("</table>")

	return s.mailer.Send(ctx, remote.Message{
		To:       []string{digest.ReviewerEmail},
		Subject:  fmt.Sprintf("%d recording(s) pending review", len(digest.Records)),
		HTMLBody: body.String(),
	})
}
