package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// Resolver maps a user to their delivery addresses. The profile service
// owning user contact data is an external collaborator; this is the slice
// the channels need.
type Resolver interface {
	EmailFor(ctx context.Context, userID uuid.UUID) (string, error)
	PhoneFor(ctx context.Context, userID uuid.UUID) (string, error)
}

// Channel delivers a notification to a user over one medium
type Channel interface {
	Name() string
	Send(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error
}

// EmailChannel delivers via AWS SESv2
type EmailChannel struct {
	client    *sesv2.Client
	sender    string
	addresses Resolver
}

func NewEmailChannel(client *sesv2.Client, sender string, addresses Resolver) *EmailChannel {
	return &EmailChannel{client: client, sender: sender, addresses: addresses}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error {
	address, err := c.addresses.EmailFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("no email address for user %s: %w", userID, err)
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	_, err = c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.sender),
		Destination: &sestypes.Destination{
			ToAddresses: []string{address},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subjectFor(eventType))},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(string(body))},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}

// SMSChannel delivers via AWS SNS
type SMSChannel struct {
	client  *sns.Client
	numbers Resolver
}

func NewSMSChannel(client *sns.Client, numbers Resolver) *SMSChannel {
	return &SMSChannel{client: client, numbers: numbers}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Send(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error {
	number, err := c.numbers.PhoneFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("no phone number for user %s: %w", userID, err)
	}
	_, err = c.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(number),
		Message:     aws.String(subjectFor(eventType)),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// RealtimeSender pushes a message to a connected user
type RealtimeSender interface {
	SendToUser(userID string, msg Message) error
}

// WebSocketChannel delivers to connected realtime clients
type WebSocketChannel struct {
	sender RealtimeSender
}

func NewWebSocketChannel(sender RealtimeSender) *WebSocketChannel {
	return &WebSocketChannel{sender: sender}
}

func (c *WebSocketChannel) Name() string { return ChannelWebSocket }

func (c *WebSocketChannel) Send(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error {
	return c.sender.SendToUser(userID.String(), Message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func subjectFor(eventType string) string {
	switch eventType {
	case EventBidSubmitted:
		return "A new bid was submitted on your project"
	case EventBidAccepted:
		return "Your bid was accepted"
	case EventBidRejected:
		return "Your bid was not selected"
	case EventBidWithdrawn:
		return "A bid on your project was withdrawn"
	case EventInterviewScheduled:
		return "An interview has been scheduled"
	case EventContractSigned:
		return "Your contract was signed"
	case EventEscrowFunded:
		return "Escrow has been funded"
	case EventFundsReleased:
		return "Funds have been released"
	case EventProjectStateChanged:
		return "Your project status changed"
	case EventExpertInvited:
		return "You have been invited to a project"
	case EventEscrowRefunded:
		return "Your escrow has been refunded"
	}
	return "Marketplace update"
}
