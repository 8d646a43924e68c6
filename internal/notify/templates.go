package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/ticket"
)

const bodyStyle = `font-family:-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;color:#111;line-height:1.5;`

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("$%.2f %s", float64(cents)/100, strings.ToUpper(currency))
}

func membershipReceipt(name string, amountCents int64, currency, intentID string, purchasedAt time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, `<div style="%s">`, bodyStyle)
	fmt.Fprintf(&b, `<h1>UBCMA Membership</h1>`)
	fmt.Fprintf(&b, `<p>Hi %s, thanks for joining! Your membership is now active.</p>`, name)
	fmt.Fprintf(&b, `<ul>`)
	fmt.Fprintf(&b, `<li><strong>Amount:</strong> %s</li>`, formatAmount(amountCents, currency))
	fmt.Fprintf(&b, `<li><strong>Reference:</strong> %s</li>`, intentID)
	fmt.Fprintf(&b, `<li><strong>Date:</strong> %s</li>`, purchasedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, `</ul>`)
	fmt.Fprintf(&b, `<p style="font-size:12px;color:#555">Keep this email as your payment confirmation.</p>`)
	b.WriteString(`</div>`)

	return Message{
		Subject:  "UBCMA Membership — Payment Confirmation",
		HTMLBody: b.String(),
	}
}

func eventReceipt(name string, amountCents int64, currency, intentID string, event events.Event, tkt *ticket.Ticket, purchasedAt time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, `<div style="%s">`, bodyStyle)
	fmt.Fprintf(&b, `<h1>%s</h1>`, event.Title)
	fmt.Fprintf(&b, `<p>Hi %s, you're in! Here is your ticket and receipt.</p>`, name)

	if tkt != nil {
		b.WriteString(`<div style="border:1px solid #eee;border-radius:12px;padding:16px;margin:12px 0;background:#fafafa">`)
		b.WriteString(`<h3 style="margin-top:0">Your Ticket</h3>`)
		fmt.Fprintf(&b, `<img src="%s" alt="QR code" style="display:block;max-width:180px;width:100%%;height:auto;margin:8px 0;"/>`, tkt.ImageURL)
		fmt.Fprintf(&b, `<p style="margin:8px 0;"><strong>Ticket Code:</strong> <span style="font-family:monospace">%s</span></p>`, tkt.Code)
		b.WriteString(`<p style="margin:8px 0;font-size:12px;color:#555">Present this ticket (code or QR) at entry.</p>`)
		b.WriteString(`</div>`)
	}

	b.WriteString(`<ul>`)
	fmt.Fprintf(&b, `<li><strong>Starts:</strong> %s</li>`, event.StartsAt.Format(time.RFC1123))
	fmt.Fprintf(&b, `<li><strong>Location:</strong> %s</li>`, event.Location)
	if amountCents > 0 {
		fmt.Fprintf(&b, `<li><strong>Amount:</strong> %s</li>`, formatAmount(amountCents, currency))
		fmt.Fprintf(&b, `<li><strong>Reference:</strong> %s</li>`, intentID)
	}
	fmt.Fprintf(&b, `<li><strong>Date:</strong> %s</li>`, purchasedAt.Format(time.RFC1123))
	b.WriteString(`</ul></div>`)

	text := fmt.Sprintf("Your ticket for %s.\nTicket code: %s\nStarts: %s\nLocation: %s\n",
		event.Title, ticketCodeOrEmpty(tkt), event.StartsAt.Format(time.RFC1123), event.Location)

	return Message{
		Subject:  "Your Ticket — " + event.Title,
		HTMLBody: b.String(),
		TextBody: text,
	}
}

func ticketCodeOrEmpty(tkt *ticket.Ticket) string {
	if tkt == nil {
		return ""
	}
	return tkt.Code
}
