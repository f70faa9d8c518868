package email

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/habitsforgood/reminder-engine/internal/domain"
	"github.com/habitsforgood/reminder-engine/internal/provider"
)

// Subject is the daily reminder subject line.
const Subject = "Your daily habit check-in!"

const encouragingNote = "Keep going! You're doing great making positive changes every day."

var reminderTemplate = template.Must(template.New("daily-reminder").Parse(`
<h2>Hi there!</h2>
<p>{{.Note}}</p>
{{if .Sponsor}}
<div style="border: 1px solid #ddd; padding: 10px; margin: 20px 0;">
    <h4>A message from our sponsor: {{.Sponsor.SponsorName}}</h4>
    <p>{{.Sponsor.Message}}</p>
    {{if .Sponsor.ImageURL}}<img src="{{.Sponsor.ImageURL}}" style="max-width: 100%;" />{{end}}
</div>
{{end}}
<div style="margin: 30px 0;">
    <p>Did you complete your habits for today?</p>
    <a href="{{.YesLink}}" style="background: #4caf50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; margin-right: 10px;">Yes, I did it!</a>
    <a href="{{.NoLink}}" style="background: #f44336; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Not today</a>
</div>
<p>You don't need to log in to submit your update.</p>
`))

type templateData struct {
	Note    string
	Sponsor *domain.SponsorMessage
	YesLink template.URL
	NoLink  template.URL
}

// Composer assembles the daily reminder email: greeting, optional sponsor
// block, and signed one-click yes/no submission links.
type Composer struct {
	signer  *TokenSigner
	baseURL string
}

func NewComposer(signer *TokenSigner, baseURL string) (*Composer, error) {
	if signer == nil {
		return nil, fmt.Errorf("token signer is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("public base url is required")
	}
	return &Composer{signer: signer, baseURL: baseURL}, nil
}

// Compose builds the deliverable message for one recipient/enrollment pair.
// A nil sponsor simply omits the sponsor block.
func (c *Composer) Compose(recipient domain.Recipient, enrollment domain.Enrollment, sponsor *domain.SponsorMessage) (provider.Message, error) {
	yesToken, err := c.signer.Sign(recipient.ID, enrollment.ID, enrollment.CampaignID, true)
	if err != nil {
		return provider.Message{}, err
	}
	noToken, err := c.signer.Sign(recipient.ID, enrollment.ID, enrollment.CampaignID, false)
	if err != nil {
		return provider.Message{}, err
	}

	data := templateData{
		Note:    encouragingNote,
		Sponsor: sponsor,
		YesLink: template.URL(c.submissionLink(yesToken)),
		NoLink:  template.URL(c.submissionLink(noToken)),
	}

	var body strings.Builder
	if err := reminderTemplate.Execute(&body, data); err != nil {
		return provider.Message{}, fmt.Errorf("failed to render reminder template: %w", err)
	}

	return provider.Message{
		To:      recipient.Email,
		Subject: Subject,
		HTML:    body.String(),
	}, nil
}

func (c *Composer) submissionLink(token string) string {
	return fmt.Sprintf("%s/auth/email-submission/%s", c.baseURL, token)
}
