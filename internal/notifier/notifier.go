// Package notifier composes and delivers outbound email for auth flows.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snehasaisneha/staticauth/internal/user"
)

// Message is a fully composed outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a composed message through one transport.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Notifier formats auth notifications and hands them to a Sender.
type Notifier struct {
	sender      Sender
	serviceName string
}

// New builds a Notifier over the given transport.
func New(sender Sender, serviceName string) (*Notifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	name := strings.TrimSpace(serviceName)
	if name == "" {
		name = "staticauth"
	}
	return &Notifier{sender: sender, serviceName: name}, nil
}

// OneTimeCode delivers a verification code.
func (n *Notifier) OneTimeCode(ctx context.Context, to string, code string, ttl time.Duration) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s verification code", n.serviceName),
		Body: fmt.Sprintf(
			"Your verification code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this message.\n",
			code, minutes,
		),
	})
}

// RegistrationReceived tells a new user their account awaits review.
func (n *Notifier) RegistrationReceived(ctx context.Context, to string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s registration received", n.serviceName),
		Body:    "Your registration was received and is waiting for an administrator to approve it.\nYou will get another email once your account is active.\n",
	})
}

// AccountApproved tells a user their account is active.
func (n *Notifier) AccountApproved(ctx context.Context, to string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s account approved", n.serviceName),
		Body:    "Your account was approved. You can now sign in with your email address.\n",
	})
}

// AccessGranted tells a user they can reach an app.
func (n *Notifier) AccessGranted(ctx context.Context, to string, appName string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Access granted: %s", appName),
		Body:    fmt.Sprintf("You now have access to %s.\n", appName),
	})
}

// AdminRegistrationAlert tells subscribed admins about a new registration.
//
// Delivery is best effort per recipient; the first failure is reported but
// does not stop the remaining sends.
func (n *Notifier) AdminRegistrationAlert(ctx context.Context, admins []user.User, newEmail string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	message := Message{
		Subject: fmt.Sprintf("%s: new registration pending", n.serviceName),
		Body:    fmt.Sprintf("A new user registered with %s and is waiting for approval.\n", newEmail),
	}
	return n.fanOut(ctx, admins, message)
}

// AdminAccessRequestAlert tells subscribed admins about a new access request.
func (n *Notifier) AdminAccessRequestAlert(ctx context.Context, admins []user.User, requesterEmail string, appName string, requestMessage string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier is not configured")
	}
	body := fmt.Sprintf("%s requested access to %s.\n", requesterEmail, appName)
	if strings.TrimSpace(requestMessage) != "" {
		body += fmt.Sprintf("\nMessage from the requester:\n%s\n", requestMessage)
	}
	message := Message{
		Subject: fmt.Sprintf("%s: access request for %s", n.serviceName, appName),
		Body:    body,
	}
	return n.fanOut(ctx, admins, message)
}

func (n *Notifier) fanOut(ctx context.Context, recipients []user.User, message Message) error {
	var firstErr error
	for _, recipient := range recipients {
		if strings.TrimSpace(recipient.Email) == "" {
			continue
		}
		message.To = recipient.Email
		if err := n.sender.Send(ctx, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
