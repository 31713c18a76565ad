package saby

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crm-integrations/saby-connector/internal/domain"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
)

type capturedCall struct {
	Method string
	Params interface{}
}

// fakeCrmServer records incoming RPC envelopes and replies from a scripted
// queue of respond functions, one per call.
type fakeCrmServer struct {
	calls    []capturedCall
	handlers []func(w http.ResponseWriter)
}

func (f *fakeCrmServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var envelope struct {
		Method string      `json:"method"`
		Params interface{} `json:"params"`
	}
	json.Unmarshal(body, &envelope)

	f.calls = append(f.calls, capturedCall{Method: envelope.Method, Params: envelope.Params})

	if len(f.handlers) == 0 {
		writeJSON(w, map[string]interface{}{"result": map[string]interface{}{}})
		return
	}

	respond := f.handlers[0]
	f.handlers = f.handlers[1:]
	respond(w)
}

func respondResult(result interface{}) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		writeJSON(w, map[string]interface{}{"result": result})
	}
}

func respondRpcError(code int, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		writeJSON(w, map[string]interface{}{
			"error": map[string]interface{}{"code": code, "message": message},
		})
	}
}

func respondStatus(status int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
	}
}

func newTestClient(t *testing.T, crm *fakeCrmServer) *Client {
	t.Helper()

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"token": "tok-1"})
	}))
	t.Cleanup(authServer.Close)

	apiServer := httptest.NewServer(http.HandlerFunc(crm.handle))
	t.Cleanup(apiServer.Close)

	cfg := testConfig(authServer.URL, apiServer.URL)
	return NewClient(cfg, NewRpcClient(cfg, NewTokenManager(cfg)))
}

func TestGetThemeByName(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"d": []interface{}{float64(7), "Test", nil, float64(42)}}),
	}}
	client := newTestClient(t, crm)

	theme, err := client.GetThemeByName(context.Background(), "Test")
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, theme.ThemeID, float64(7))
	assert.Equal(t, theme.ThemeName, "Test")
	assert.Equal(t, theme.Error, nil)
	assert.Equal(t, theme.Regulation, float64(42))

	assert.Equal(t, crm.calls[0].Method, "CRMLead.getCRMThemeByName")
	params, _ := crm.calls[0].Params.(map[string]interface{})
	assert.Equal(t, params["НаименованиеТемы"], "Test")
}

func TestGetThemeByNameShortReply(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"d": []interface{}{}}),
	}}
	client := newTestClient(t, crm)

	theme, err := client.GetThemeByName(context.Background(), "Unknown")
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	// Unknown themes come back as all-null fields, never as an error.
	assert.Equal(t, theme.ThemeID, nil)
	assert.Equal(t, theme.ThemeName, nil)
	assert.Equal(t, theme.Error, nil)
	assert.Equal(t, theme.Regulation, nil)
}

func TestGetThemeByNameCaches(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"d": []interface{}{float64(7), "Test", nil, float64(42)}}),
	}}
	client := newTestClient(t, crm)

	if _, err := client.GetThemeByName(context.Background(), "Test"); err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	theme, err := client.GetThemeByName(context.Background(), "Test")
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, theme.Regulation, float64(42))
	assert.Equal(t, len(crm.calls), 1)
}

func TestGetThemeByNameRetriesTransportFailure(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondStatus(http.StatusBadGateway),
		respondResult(map[string]interface{}{"d": []interface{}{float64(7), "Test", nil, float64(42)}}),
	}}
	client := newTestClient(t, crm)

	theme, err := client.GetThemeByName(context.Background(), "Test")
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, theme.Regulation, float64(42))
	assert.Equal(t, len(crm.calls), 2)
}

func TestGetThemeByNameDoesNotRetryRpcError(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondRpcError(17, "Тема не найдена"),
	}}
	client := newTestClient(t, crm)

	_, err := client.GetThemeByName(context.Background(), "Test")

	var rpcErr *RpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected an RpcError; got %v", err)
	}
	assert.Equal(t, len(crm.calls), 1)
}

func TestFindOrCreateClientLookupHit(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"client": "12345"}),
	}}
	client := newTestClient(t, crm)

	clientId, err := client.FindOrCreateClient(context.Background(), map[string]interface{}{
		"inn":  "7707083893",
		"kpp":  "773601001",
		"name": "ООО Ромашка",
	})
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	if clientId == "" {
		t.Fatal("Expected a client id")
	}

	assert.Equal(t, len(crm.calls), 1)
	assert.Equal(t, crm.calls[0].Method, "Контрагент.ПоИННКППКФ")

	params, _ := crm.calls[0].Params.(map[string]interface{})
	lookup, _ := params["params"].(map[string]interface{})
	expectedLookup := map[string]interface{}{
		"d": []interface{}{"7707083893", "773601001", "ООО Ромашка"},
		"s": []interface{}{
			map[string]interface{}{"n": "ИНН", "t": "Строка"},
			map[string]interface{}{"n": "КПП", "t": "Строка"},
			map[string]interface{}{"n": "Название", "t": "Строка"},
		},
		"_type": "record",
		"f":     float64(0),
	}
	if diff := cmp.Diff(expectedLookup, lookup); diff != "" {
		t.Fatalf("Unexpected lookup payload (-expected +actual):\n%s", diff)
	}
}

func TestFindOrCreateClientFallsBackToCreate(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondRpcError(404, "Контрагент не найден"),
		respondResult(map[string]interface{}{"client": "67890"}),
	}}
	client := newTestClient(t, crm)

	clientId, err := client.FindOrCreateClient(context.Background(), map[string]interface{}{
		"inn":  "7707083893",
		"kpp":  "773601001",
		"name": "ООО Ромашка",
	})
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}
	if clientId == "" {
		t.Fatal("Expected a client id")
	}

	assert.Equal(t, len(crm.calls), 2)

	// The creation call carries a paired data/schema record.
	params, _ := crm.calls[1].Params.(map[string]interface{})
	record, _ := params["params"].(map[string]interface{})
	data, _ := record["d"].(map[string]interface{})
	schema, _ := record["s"].(map[string]interface{})
	assert.Equal(t, data["ИНН"], "7707083893")
	assert.Equal(t, schema["ИНН"], "Строка")
	assert.Equal(t, len(data), len(schema))
}

func TestFindOrCreateClientPropagatesTransportError(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondStatus(http.StatusBadGateway),
	}}
	client := newTestClient(t, crm)

	_, err := client.FindOrCreateClient(context.Background(), map[string]interface{}{
		"inn":  "7707083893",
		"kpp":  "773601001",
		"name": "ООО Ромашка",
	})

	// Only rpc errors fall through to creation; transport failures surface.
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected a TransportError; got %v", err)
	}
	assert.Equal(t, len(crm.calls), 1)
}

func TestFindOrCreateClientSkipsLookupWithoutIdentifiers(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"client": "67890"}),
	}}
	client := newTestClient(t, crm)

	_, err := client.FindOrCreateClient(context.Background(), map[string]interface{}{
		"name": "ООО Ромашка",
	})
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, len(crm.calls), 1)
	params, _ := crm.calls[0].Params.(map[string]interface{})
	record, _ := params["params"].(map[string]interface{})
	if _, isRecord := record["d"].(map[string]interface{}); !isRecord {
		t.Fatal("Expected a creation record, not a positional lookup")
	}
}

func TestCreateDeal(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"d": map[string]interface{}{
			"@Документ":              float64(100),
			"ИдентификаторДокумента": "abc-123",
			"Регламент":              float64(5),
			"Состояние":              nil,
			"Источник":               nil,
		}}),
	}}
	client := newTestClient(t, crm)

	deal, err := client.CreateDeal(context.Background(), &domain.CreateDealRequest{
		Regulation:  5,
		Responsible: "Иванов",
		Note:        "от интеграции",
		ContactPerson: &domain.ContactPerson{
			Name:  "Петров Петр",
			Phone: "+7 (900) 123-45-67",
			Email: "petrov@example.com",
		},
		Client: &domain.Client{
			INN:  "7707083893",
			KPP:  "773601001",
			Name: "ООО Ромашка",
		},
		UserConditions: map[string]string{"source": "site"},
		Nomenclatures: []domain.Nomenclature{
			{Code: "SKU-1", Price: 99.90, Count: 2},
		},
	})
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, deal.DocumentID, 100)
	assert.Equal(t, deal.UUID, "abc-123")
	assert.Equal(t, deal.Regulation, 5)
	if deal.State != nil {
		t.Fatal("Expected a nil state")
	}
	if deal.Source != nil {
		t.Fatal("Expected a nil source")
	}

	assert.Equal(t, crm.calls[0].Method, "CRMLead.insertRecord")

	params, _ := crm.calls[0].Params.(map[string]interface{})
	lead, _ := params["Лид"].(map[string]interface{})
	data, _ := lead["d"].(map[string]interface{})
	schema, _ := lead["s"].(map[string]interface{})

	// Every data key must carry a schema entry and vice versa.
	assert.Equal(t, len(data), len(schema))
	for key := range data {
		if _, present := schema[key]; !present {
			t.Fatalf("Data key %q has no schema entry", key)
		}
	}

	assert.Equal(t, data["Регламент"], float64(5))
	assert.Equal(t, schema["Регламент"], "Число целое")
	assert.Equal(t, data["Ответственный"], "Иванов")
	assert.Equal(t, schema["КонтактноеЛицо"], "Запись")
	assert.Equal(t, schema["UserConds"], "JSON-объект")

	contact, _ := data["КонтактноеЛицо"].(map[string]interface{})
	contactData, _ := contact["d"].(map[string]interface{})
	assert.Equal(t, contactData["ФИО"], "Петров Петр")

	clientRecord, _ := data["Клиент"].(map[string]interface{})
	clientData, _ := clientRecord["d"].(map[string]interface{})
	clientSchema, _ := clientRecord["s"].(map[string]interface{})
	assert.Equal(t, clientData["ИНН"], "7707083893")

	// Client type defaults to legal entity when the caller leaves it out.
	expectedType := []interface{}{float64(domain.ClientTypeLegalEntity)}
	if diff := cmp.Diff(expectedType, clientData["Type"]); diff != "" {
		t.Fatalf("Unexpected client type (-expected +actual):\n%s", diff)
	}
	expectedTypeTag := map[string]interface{}{"Массив": "Число целое"}
	if diff := cmp.Diff(expectedTypeTag, clientSchema["Type"]); diff != "" {
		t.Fatalf("Unexpected client type tag (-expected +actual):\n%s", diff)
	}
}

func TestCreateDealDoesNotRetry(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondStatus(http.StatusBadGateway),
	}}
	client := newTestClient(t, crm)

	_, err := client.CreateDeal(context.Background(), &domain.CreateDealRequest{Regulation: 5})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected a TransportError; got %v", err)
	}
	assert.Equal(t, len(crm.calls), 1)
}

func TestGetDealStatus(t *testing.T) {
	crm := &fakeCrmServer{handlers: []func(w http.ResponseWriter){
		respondResult(map[string]interface{}{"Состояние": "В работе"}),
	}}
	client := newTestClient(t, crm)

	status, err := client.GetDealStatus(context.Background(), 100)
	if err != nil {
		t.Fatal("Unexpected error: ", err)
	}

	assert.Equal(t, status["Состояние"], "В работе")
	assert.Equal(t, crm.calls[0].Method, "CRMLead.getStatus")
	params, _ := crm.calls[0].Params.(map[string]interface{})
	assert.Equal(t, params["ИдентификаторДокумента"], float64(100))
}

func TestRequestIdsAreMonotonic(t *testing.T) {
	client := &Client{}

	first := client.nextRequestId()
	second := client.nextRequestId()

	if second <= first {
		t.Fatalf("Expected monotonically increasing request ids; got %d then %d", first, second)
	}
}
