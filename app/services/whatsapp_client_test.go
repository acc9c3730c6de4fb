package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lmoretti/whatsflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *WhatsAppClient {
	return NewWhatsAppClient(config.GatewayConfig{
		BaseURL:           baseURL,
		AccessToken:       "test-token",
		PhoneNumberID:     "12345",
		BusinessAccountID: "67890",
		RequestTimeout:    5 * time.Second,
	})
}

func TestSendTemplateMessage(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	id, err := client.SendTemplateMessage(context.Background(), "+5491111111111", "promo_template", "es_AR", []string{"Marta", "20%"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC123", id)

	assert.Equal(t, "whatsapp", captured["messaging_product"])
	assert.Equal(t, "+5491111111111", captured["to"])
	assert.Equal(t, "template", captured["type"])

	template := captured["template"].(map[string]any)
	assert.Equal(t, "promo_template", template["name"])
	assert.Equal(t, "es_AR", template["language"].(map[string]any)["code"])

	components := template["components"].([]any)
	require.Len(t, components, 1)
	params := components[0].(map[string]any)["parameters"].([]any)
	require.Len(t, params, 2)
	assert.Equal(t, "Marta", params[0].(map[string]any)["text"])
}

func TestSendTemplateMessageWithoutParamsOmitsComponents(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendTemplateMessage(context.Background(), "+5491111111111", "promo_template", "es_AR", nil)
	require.NoError(t, err)

	template := captured["template"].(map[string]any)
	_, hasComponents := template["components"]
	assert.False(t, hasComponents)
}

func TestSendTemplateMessageGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Template name does not exist","code":132001}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendTemplateMessage(context.Background(), "+5491111111111", "ghost_template", "es_AR", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "132001")
	assert.Contains(t, err.Error(), "Template name does not exist")
}

func TestSendTemplateMessageUnconfigured(t *testing.T) {
	client := NewWhatsAppClient(config.GatewayConfig{})
	_, err := client.SendTemplateMessage(context.Background(), "+5491111111111", "promo_template", "es_AR", nil)
	assert.Error(t, err)
}

func TestGetTemplates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/67890/message_templates", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"name":"promo_template","status":"APPROVED","category":"MARKETING","language":"es_AR"},
			{"name":"welcome","status":"PENDING","category":"UTILITY","language":"en_US"}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	templates, err := client.GetTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "promo_template", templates[0].Name)
	assert.Equal(t, "APPROVED", templates[0].Status)
}
