package saby

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/domain"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// CRM method names used by the connector.
const (
	methodGetThemeByName = "CRMLead.getCRMThemeByName"
	methodInsertLead     = "CRMLead.insertRecord"
	methodGetLeadStatus  = "CRMLead.getStatus"
	methodClientByInnKpp = "Контрагент.ПоИННКППКФ"
)

// Client translates plain deal/client/theme intents into the CRM's
// record/schema-paired RPC calls and maps the replies back.
type Client struct {
	rpc         *RpcClient
	themeCache  *expirable.LRU[string, domain.ThemeInfo]
	readRetries int
	requestId   atomic.Int64
}

func NewClient(cfg *config.Config, rpc *RpcClient) *Client {
	return &Client{
		rpc:         rpc,
		themeCache:  expirable.NewLRU[string, domain.ThemeInfo](cfg.ThemeCacheSize, nil, cfg.ThemeCacheTtl),
		readRetries: cfg.SabyReadRetryAttempts,
	}
}

func (c *Client) nextRequestId() int {
	return int(c.requestId.Add(1))
}

// callRead retries idempotent read calls a bounded number of times on
// transport failures.  Writes must never go through here - the CRM offers no
// idempotency key for deal creation.
func (c *Client) callRead(ctx context.Context, method string, params interface{}) (map[string]interface{}, error) {
	var result map[string]interface{}
	var err error

	for attempt := 0; ; attempt++ {
		result, err = c.rpc.Call(ctx, method, params, c.nextRequestId())
		if err == nil {
			return result, nil
		}

		var transportErr *TransportError
		if attempt >= c.readRetries || !errors.As(err, &transportErr) {
			return nil, err
		}

		logger.Log.WithFields(logrus.Fields{
			"method":  method,
			"attempt": attempt + 1,
			"error":   err}).Warn("Retrying read call")
	}
}

// GetThemeByName looks up a CRM theme and the regulation it selects.  Results
// are cached; an unknown theme yields all-null fields, not an error.
func (c *Client) GetThemeByName(ctx context.Context, themeName string) (domain.ThemeInfo, error) {
	if theme, ok := c.themeCache.Get(themeName); ok {
		return theme, nil
	}

	logger.Log.WithFields(logrus.Fields{"theme": themeName}).Info("Getting CRM theme")

	result, err := c.callRead(ctx, methodGetThemeByName, map[string]interface{}{
		"НаименованиеТемы": themeName,
	})
	if err != nil {
		return domain.ThemeInfo{}, err
	}

	theme := decodeThemeReply(result)
	c.themeCache.Add(themeName, theme)

	return theme, nil
}

// decodeThemeReply destructures the CRM's positional theme reply.  This is the
// one reply the CRM does not tag: "d" is a 4-element array of
// [themeId, themeName, errorFlag, regulationId].  Vendor-specific and brittle -
// positional assumptions must not leak out of this function.
func decodeThemeReply(result map[string]interface{}) domain.ThemeInfo {
	values, _ := result["d"].([]interface{})

	pos := func(i int) interface{} {
		if i < len(values) {
			return values[i]
		}
		return nil
	}

	return domain.ThemeInfo{
		ThemeID:    pos(0),
		ThemeName:  pos(1),
		Error:      pos(2),
		Regulation: pos(3),
	}
}

// FindOrCreateClient looks a client up by tax identifiers when both are
// present and falls back to creation when the lookup is rejected.  The CRM
// reports "not found" as an rpc error, so only rpc errors fall through;
// transport and auth failures still propagate.
func (c *Client) FindOrCreateClient(ctx context.Context, clientData map[string]interface{}) (string, error) {
	logger.Log.Info("Finding or creating client")

	inn, innPresent := clientData["inn"].(string)
	kpp, kppPresent := clientData["kpp"].(string)

	if innPresent && kppPresent {
		name, _ := clientData["name"].(string)

		result, err := c.rpc.Call(ctx, methodClientByInnKpp, map[string]interface{}{
			"params": map[string]interface{}{
				"d": []interface{}{inn, kpp, name},
				"s": []interface{}{
					map[string]string{"n": "ИНН", "t": TypeString},
					map[string]string{"n": "КПП", "t": TypeString},
					map[string]string{"n": "Название", "t": TypeString},
				},
				"_type": "record",
				"f":     0,
			},
		}, c.nextRequestId())

		if err == nil {
			logger.Log.Info("Found existing client")
			return fmt.Sprintf("%v", result), nil
		}

		var rpcErr *RpcError
		if !errors.As(err, &rpcErr) {
			return "", err
		}

		logger.Log.WithFields(logrus.Fields{"error": err}).Warn("Client not found, will create new")
	}

	return c.createClient(ctx, clientData)
}

func (c *Client) createClient(ctx context.Context, clientData map[string]interface{}) (string, error) {
	logger.Log.Info("Creating new client")

	record := NewRecord()

	inn, _ := clientData["inn"].(string)
	kpp, _ := clientData["kpp"].(string)
	name, _ := clientData["name"].(string)

	record.SetString("ИНН", inn)
	record.SetString("КПП", kpp)
	record.SetString("Название", name)

	result, err := c.rpc.Call(ctx, methodClientByInnKpp, map[string]interface{}{
		"params": record,
	}, c.nextRequestId())
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v", result), nil
}

// CreateDeal builds the CRM lead record and creates the deal.  Every field
// enters the data and schema maps together via Record - the CRM rejects
// records whose key sets differ.
func (c *Client) CreateDeal(ctx context.Context, dealRequest *domain.CreateDealRequest) (*domain.DealResponse, error) {
	logger.Log.WithFields(logrus.Fields{"regulation": dealRequest.Regulation}).Info("Creating deal")

	lead := NewRecord()
	lead.SetInt("Регламент", dealRequest.Regulation)

	if dealRequest.Responsible != "" {
		lead.SetString("Ответственный", dealRequest.Responsible)
	}

	if dealRequest.ContactPerson != nil {
		contact := NewRecord()
		contact.SetString("ФИО", dealRequest.ContactPerson.Name)
		if dealRequest.ContactPerson.Phone != "" {
			contact.SetString("Телефон", dealRequest.ContactPerson.Phone)
		}
		if dealRequest.ContactPerson.Email != "" {
			contact.SetString("email", dealRequest.ContactPerson.Email)
		}
		lead.SetRecord("КонтактноеЛицо", contact)
	}

	if dealRequest.Client != nil {
		client := NewRecord()
		if dealRequest.Client.FaceID != "" {
			client.SetString("@Лицо", dealRequest.Client.FaceID)
		}
		if dealRequest.Client.INN != "" {
			client.SetString("ИНН", dealRequest.Client.INN)
		}
		if dealRequest.Client.KPP != "" {
			client.SetString("КПП", dealRequest.Client.KPP)
		}
		client.SetString("Наименование", dealRequest.Client.Name)

		clientType := dealRequest.Client.ClientType
		if len(clientType) == 0 {
			clientType = []int{domain.ClientTypeLegalEntity}
		}
		client.SetIntArray("Type", clientType)

		lead.SetRecord("Клиент", client)
	}

	if dealRequest.Note != "" {
		lead.SetString("Примечание", dealRequest.Note)
	}

	if len(dealRequest.UserConditions) > 0 {
		lead.SetJSON("UserConds", dealRequest.UserConditions)
	}

	if len(dealRequest.Nomenclatures) > 0 {
		items := make([]map[string]interface{}, 0, len(dealRequest.Nomenclatures))
		for _, item := range dealRequest.Nomenclatures {
			items = append(items, map[string]interface{}{
				"code":  item.Code,
				"price": item.Price,
				"count": item.Count,
			})
		}
		lead.SetJSON("Nomenclatures", items)
	}

	result, err := c.rpc.Call(ctx, methodInsertLead, map[string]interface{}{
		"Лид": lead,
	}, c.nextRequestId())
	if err != nil {
		return nil, err
	}

	response := decodeDealReply(result, dealRequest)

	logger.Log.WithFields(logrus.Fields{
		"document_id": response.DocumentID,
		"uuid":        response.UUID}).Info("Deal created successfully")

	return response, nil
}

func decodeDealReply(result map[string]interface{}, dealRequest *domain.CreateDealRequest) *domain.DealResponse {
	data, _ := result["d"].(map[string]interface{})

	response := &domain.DealResponse{
		DocumentID: asInt(data["@Документ"]),
		UUID:       asString(data["ИдентификаторДокумента"]),
		Regulation: dealRequest.Regulation,
		Note:       asString(data["Примечание"]),
		CreatedAt:  time.Now().UTC(),
	}

	if regulation, present := data["Регламент"]; present && regulation != nil {
		response.Regulation = asInt(regulation)
	}
	if client, ok := data["Клиент"].(map[string]interface{}); ok {
		response.Client = client
	}
	if contact, ok := data["КонтактноеЛицо"].(map[string]interface{}); ok {
		response.ContactPerson = contact
	}
	if state, ok := data["Состояние"].(string); ok {
		response.State = &state
	}
	if source, present := data["Источник"]; present && source != nil {
		value := asInt(source)
		response.Source = &value
	}

	return response
}

// GetDealStatus returns the CRM's status reply for a deal as an opaque map.
func (c *Client) GetDealStatus(ctx context.Context, documentId int) (map[string]interface{}, error) {
	logger.Log.WithFields(logrus.Fields{"document_id": documentId}).Info("Getting deal status")

	return c.callRead(ctx, methodGetLeadStatus, map[string]interface{}{
		"ИдентификаторДокумента": documentId,
	})
}

// HealthCheck probes the CRM with a theme lookup.
func (c *Client) HealthCheck(ctx context.Context, themeName string) error {
	_, err := c.GetThemeByName(ctx, themeName)
	return err
}

func asInt(value interface{}) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func asString(value interface{}) string {
	s, _ := value.(string)
	return s
}
