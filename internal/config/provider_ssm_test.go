package config

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient records GetParameters calls and serves canned values.
type mockSSMClient struct {
	values  map[string]string
	invalid []string
	err     error
	calls   [][]string
}

func (m *mockSSMClient) GetParameters(_ context.Context, params *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.calls = append(m.calls, params.Names)
	if m.err != nil {
		return nil, m.err
	}

	out := &ssm.GetParametersOutput{}
	for _, name := range params.Names {
		if v, ok := m.values[name]; ok {
			n, val := name, v
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: &n, Value: &val})
		}
	}
	out.InvalidParameters = append(out.InvalidParameters, m.invalid...)
	return out, nil
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
	var _ SecretProvider = NewSSMProvider("eu-central-1")
}

func TestSSMProviderEmptyKeysReturnsEmptyMap(t *testing.T) {
	provider := NewSSMProvider("eu-central-1")
	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetParametersBatch with nil keys returned unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result for nil keys, got %v", result)
	}
}

func TestSSMProviderResolvesValues(t *testing.T) {
	client := &mockSSMClient{values: map[string]string{
		"/prod/stagecall/database/url":   "postgres://rds/prod",
		"/prod/stagecall/messaging/auth": "token-123",
	}}
	provider := newSSMProviderWithClient("eu-central-1", client)

	result, err := provider.GetParametersBatch(context.Background(),
		[]string{"/prod/stagecall/database/url", "/prod/stagecall/messaging/auth"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}
	if result["/prod/stagecall/database/url"] != "postgres://rds/prod" {
		t.Errorf("database url not resolved: %v", result)
	}
	if result["/prod/stagecall/messaging/auth"] != "token-123" {
		t.Errorf("auth token not resolved: %v", result)
	}
}

func TestSSMProviderBatchesAtAPILimit(t *testing.T) {
	values := make(map[string]string)
	var keys []string
	for i := 0; i < 23; i++ {
		key := fmt.Sprintf("/prod/stagecall/param_%d", i)
		keys = append(keys, key)
		values[key] = fmt.Sprintf("value_%d", i)
	}
	client := &mockSSMClient{values: values}
	provider := newSSMProviderWithClient("eu-central-1", client)

	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}
	if len(result) != 23 {
		t.Errorf("expected 23 resolved values, got %d", len(result))
	}
	if len(client.calls) != 3 {
		t.Errorf("expected 3 batched calls for 23 keys, got %d", len(client.calls))
	}
	if len(client.calls[0]) != ssmMaxBatchSize {
		t.Errorf("expected first batch of %d, got %d", ssmMaxBatchSize, len(client.calls[0]))
	}
}

func TestSSMProviderReportsInvalidParameters(t *testing.T) {
	client := &mockSSMClient{invalid: []string{"/prod/stagecall/missing"}}
	provider := newSSMProviderWithClient("eu-central-1", client)

	_, err := provider.GetParametersBatch(context.Background(), []string{"/prod/stagecall/missing"})
	if err == nil {
		t.Fatal("expected error for invalid parameters, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected 'not found' in error, got %q", err.Error())
	}
}

func TestSSMProviderContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockSSMClient{values: map[string]string{"/k": "v"}}
	provider := newSSMProviderWithClient("eu-central-1", client)

	_, err := provider.GetParametersBatch(ctx, []string{"/k"})
	if err == nil {
		t.Fatal("expected error with cancelled context, got nil")
	}
}
