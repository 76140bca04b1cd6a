// Package notify renders and delivers the operator notification for each
// confirmed deposit. Rendering is deterministic: the same payment and method
// descriptor always produce the same subject and bodies.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"loadpay/internal/payment"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// RenderedNotification holds the pre-rendered message content ready for
// transmission. Write-once: nothing mutates it after Render returns.
type RenderedNotification struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// templateData is the struct passed into the body templates.
type templateData struct {
	CustomerEmail  string
	Game           string
	Username       string
	DepositAmount  string
	ConvenienceFee string
	TotalPaid      string
	PaidAt         string
	Method         string
	PaymentID      string
}

// Renderer produces the notification subject and bodies from embedded Go
// templates. The display location affects only the formatted timestamp; the
// payment record keeps UTC.
type Renderer struct {
	textTmpl   *texttemplate.Template
	htmlTmpl   *template.Template
	displayLoc *time.Location
}

// NewRenderer parses the embedded templates. displayLoc may be nil, in which
// case timestamps render in UTC.
func NewRenderer(displayLoc *time.Location) (*Renderer, error) {
	textTmpl, err := texttemplate.ParseFS(templateFS, "templates/payment.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse text template: %w", err)
	}

	htmlTmpl, err := template.ParseFS(templateFS, "templates/payment.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse html template: %w", err)
	}

	if displayLoc == nil {
		displayLoc = time.UTC
	}

	return &Renderer{
		textTmpl:   textTmpl,
		htmlTmpl:   htmlTmpl,
		displayLoc: displayLoc,
	}, nil
}

// Render produces the notification for a completed payment. The subject
// embeds the payment id so operators can visually spot redelivered events in
// their inbox.
func (r *Renderer) Render(p *payment.CompletedPayment, method payment.MethodDescriptor) (RenderedNotification, error) {
	data := templateData{
		CustomerEmail:  p.CustomerEmail,
		Game:           p.Game,
		Username:       p.Username,
		DepositAmount:  fmt.Sprintf("$%.2f", p.DepositAmount),
		ConvenienceFee: fmt.Sprintf("$%.2f", p.ConvenienceFee),
		TotalPaid:      fmt.Sprintf("$%.2f", p.TotalPaid),
		PaidAt:         p.CompletedAt.In(r.displayLoc).Format("Jan 2, 2006 3:04 PM MST"),
		Method:         method.Display(),
		PaymentID:      p.PaymentID,
	}

	var text bytes.Buffer
	if err := r.textTmpl.Execute(&text, data); err != nil {
		return RenderedNotification{}, fmt.Errorf("renderer: text body: %w", err)
	}

	var html bytes.Buffer
	if err := r.htmlTmpl.Execute(&html, data); err != nil {
		return RenderedNotification{}, fmt.Errorf("renderer: html body: %w", err)
	}

	return RenderedNotification{
		Subject:  fmt.Sprintf("New Payment: %s - %s (%s)", p.Game, p.Username, p.PaymentID),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
