package provider

import (
	"fmt"

	"github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/types"
)

const maxEmbeddedPayload = 2048

// CheckChatResponse rejects buffered chat responses that carry no
// choices. Some upstreams answer 200 with a null or missing choices
// array on internal failures; the raw payload is embedded in the error
// so callers can see what actually came back.
func CheckChatResponse(providerName, model string, resp *types.ChatResponse, body []byte) error {
	if resp != nil && len(resp.Choices) > 0 {
		return nil
	}
	payload := body
	if len(payload) > maxEmbeddedPayload {
		payload = payload[:maxEmbeddedPayload]
	}
	return errors.NewBadRequestError(providerName, model,
		fmt.Sprintf("upstream returned no choices: %s", payload))
}
