package llm

import "context"

// MockClient returns a canned Response (or Err) and keeps every prompt it
// was handed, so tests can assert both call counts and prompt contents.
type MockClient struct {
	Response *Response
	Err      error
	Calls    []string
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
