package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// WorkflowTranslator posts to a blocking translation-workflow endpoint
// (Dify-style): the request carries the inputs, the reply nests the
// translated pair under data.outputs.
type WorkflowTranslator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewWorkflow(endpoint, apiKey string) (*WorkflowTranslator, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("workflow translator: endpoint is required")
	}
	return &WorkflowTranslator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}, nil
}

type workflowRequest struct {
	Inputs       Translation `json:"inputs"`
	ResponseMode string      `json:"response_mode"`
	User         string      `json:"user"`
}

type workflowResponse struct {
	Data struct {
		Outputs *Translation `json:"outputs"`
	} `json:"data"`
}

func (t *WorkflowTranslator) Translate(ctx context.Context, title, description string) (*Translation, error) {
	body, err := json.Marshal(workflowRequest{
		Inputs:       Translation{Title: title, Description: description},
		ResponseMode: "blocking",
		User:         "newswire",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workflow translate: unexpected status %d", resp.StatusCode)
	}

	var out workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Malformed response is a miss, not a delivery-path error.
		return nil, nil
	}
	if out.Data.Outputs == nil || (out.Data.Outputs.Title == "" && out.Data.Outputs.Description == "") {
		return nil, nil
	}
	return out.Data.Outputs, nil
}
