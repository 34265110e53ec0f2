package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagecall/internal/conversation"
	"stagecall/internal/types"
)

type fakeGuard struct {
	result *conversation.GuardResult
	err    error
	msgs   []*types.InboundMessage
}

func (g *fakeGuard) HandleInbound(_ context.Context, _ string, msg *types.InboundMessage) (*conversation.GuardResult, error) {
	g.msgs = append(g.msgs, msg)
	return g.result, g.err
}

type fakeProcessor struct {
	err   error
	calls []*conversation.GuardResult
}

func (p *fakeProcessor) Process(_ context.Context, _ string, _ *types.InboundMessage, result *conversation.GuardResult) error {
	p.calls = append(p.calls, result)
	return p.err
}

func webhookRouter(guard *fakeGuard, processor *fakeProcessor) *chi.Mux {
	var p InboundProcessor
	if processor != nil {
		p = processor
	}
	h := NewWebhookHandler(guard, p, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func decodeWebhook(t *testing.T, body []byte) webhookResponse {
	t.Helper()
	var resp struct {
		Data webhookResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Data
}

func TestWebhook_PassedMessageReachesProcessor(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{Action: conversation.ActionPass}}
	processor := &fakeProcessor{}
	router := webhookRouter(guard, processor)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"from":           "+972501234567",
		"button_payload": "range_10_12",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, processor.calls, 1)
	assert.Equal(t, conversation.ActionPass, decodeWebhook(t, rec.Body.Bytes()).Action)
}

func TestWebhook_RejectedMessageIsAckedWithoutProcessing(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{Action: conversation.ActionRejected}}
	processor := &fakeProcessor{}
	router := webhookRouter(guard, processor)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"from": "+972501234567",
		"body": "free text where a button was expected",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, processor.calls)
	assert.Equal(t, conversation.ActionRejected, decodeWebhook(t, rec.Body.Bytes()).Action)
}

func TestWebhook_SynthesizedContactPhoneIsForwarded(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{
		Action:       conversation.ActionPass,
		ContactPhone: "+972521112233",
	}}
	processor := &fakeProcessor{}
	router := webhookRouter(guard, processor)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"from": "+972501234567",
		"body": "דנה לוי 052-111-2233",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, processor.calls, 1)
	assert.Equal(t, "+972521112233", processor.calls[0].ContactPhone)
	assert.Equal(t, "+972521112233", decodeWebhook(t, rec.Body.Bytes()).ContactPhone)
}

func TestWebhook_ProcessorFailureStillAcks(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{Action: conversation.ActionPass}}
	processor := &fakeProcessor{err: types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)}
	router := webhookRouter(guard, processor)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"from": "+972501234567",
		"body": "hello",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_MissingFromIsRejected(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{Action: conversation.ActionPass}}
	router := webhookRouter(guard, nil)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"body": "hello",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, guard.msgs)
}

func TestWebhook_NilProcessorDropsPassedMessages(t *testing.T) {
	guard := &fakeGuard{result: &conversation.GuardResult{Action: conversation.ActionPass}}
	router := webhookRouter(guard, nil)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/whatsapp/org_1", map[string]any{
		"from": "+972501234567",
		"body": "hello",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}
