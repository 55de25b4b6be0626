package ledger

import (
	"fmt"
	"net/url"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// Form fields of a Twilio messaging webhook
const (
	fieldFrom             = "From"
	fieldBody             = "Body"
	fieldMediaURL         = "MediaUrl0"
	fieldMediaContentType = "MediaContentType0"
	fieldMessageSid       = "MessageSid"

	signatureHeader = "X-Twilio-Signature"
)

// WebhookAuth configures validation of the provider's request signature.
// Validation is off when either field is empty.
type WebhookAuth struct {
	AuthToken string
	// URL is the public webhook URL exactly as configured at the provider
	URL string
}

func (a WebhookAuth) enabled() bool {
	return a.AuthToken != "" && a.URL != ""
}

// inboundFromForm reads the first attachment only; WhatsApp sends one per message
func inboundFromForm(form url.Values) Inbound {
	return Inbound{
		Sender:           form.Get(fieldFrom),
		Text:             form.Get(fieldBody),
		MediaURL:         form.Get(fieldMediaURL),
		MediaContentType: form.Get(fieldMediaContentType),
		ChannelMessageID: form.Get(fieldMessageSid),
	}
}

// signedParams flattens the POST form the way the provider signs it, one value per name
func signedParams(form url.Values) map[string]string {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return params
}

// validSignature checks the signature header against the POST parameters
func (a WebhookAuth) validSignature(signature string, form url.Values) bool {
	if signature == "" {
		return false
	}
	validator := client.NewRequestValidator(a.AuthToken)
	return validator.Validate(a.URL, signedParams(form), signature)
}

// renderTwiML wraps a reply in the channel's messaging response markup
func renderTwiML(message string) ([]byte, error) {
	body, err := twiml.Messages([]twiml.Element{
		&twiml.MessagingMessage{Body: message},
	})
	if err != nil {
		return nil, fmt.Errorf("rendering twiml: %w", err)
	}
	return []byte(body), nil
}
