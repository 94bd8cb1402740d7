package messaging

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioMessenger sends SMS through the Twilio REST API.
type TwilioMessenger struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioMessenger(accountSID, authToken, from string) (*TwilioMessenger, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("messaging: missing twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioMessenger{client: client, from: from}, nil
}

func (t *TwilioMessenger) Send(ctx context.Context, toPhone, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(toPhone)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("messaging: twilio send to %s: %w", toPhone, err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return fmt.Errorf("messaging: twilio error %d sending to %s", *resp.ErrorCode, toPhone)
	}
	return nil
}
