package bookingapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/codec"
	"github.com/courtrace/agent/internal/model"
)

// OrderConfig holds the deployment-specific secrets needed to submit an
// order: the upstream's RSA public key for encrypting the per-request
// AES key, and the returnUrl field the upstream's order form expects.
type OrderConfig struct {
	RSAPublicKeyPEM string
	ReturnURL       string
	Origin          string
	Referer         string
}

// OrderResult is the outcome of one order-submission attempt.
type OrderResult struct {
	Success bool
	Message string
	OrderID string
	Raw     gjson.Result
}

// buildOrderPayload matches _build_order_payload: a single-space order
// for the given slot, field type and time window.
func buildOrderPayload(intent model.OrderIntent, cfg OrderConfig) map[string]any {
	price := strconv.Itoa(int(intent.Price))
	return map[string]any{
		"venTypeId":   intent.FieldTypeID,
		"venueId":     intent.VenueID,
		"fieldType":   intent.FieldType,
		"returnUrl":   cfg.ReturnURL,
		"scheduleDate": intent.Date,
		"week":        "0",
		"spaces": []map[string]any{
			{
				"venuePrice":   price,
				"count":        1,
				"sign":         intent.Sign,
				"status":       1,
				"scheduleTime": fmt.Sprintf("%s-%s", intent.Start, intent.End),
				"subSitename":  intent.FieldName,
				"subSiteId":    intent.SubSiteID,
				"tensity":      "1",
				"venueNum":     1,
			},
		},
		"tenSity": "紧张",
	}
}

// PlaceOrder submits an order-confirm request, hybrid-encrypting the
// payload (AES-128-ECB with a fresh per-request key) and the key/timestamp
// pair (RSA PKCS#1 v1.5), exactly as the upstream's own web client does.
//
// Grounded on original_source/sja_booking/order.py's OrderManager.
func (c *Client) PlaceOrder(ctx context.Context, intent model.OrderIntent, cfg OrderConfig) (OrderResult, error) {
	aesKey, err := codec.GenerateAESKey()
	if err != nil {
		return OrderResult{}, err
	}
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	payload := buildOrderPayload(intent, cfg)
	plainJSON, err := json.Marshal(payload)
	if err != nil {
		return OrderResult{}, fmt.Errorf("bookingapi: marshal order payload: %w", err)
	}

	encryptedBody, err := codec.AESEncryptECB(aesKey, string(plainJSON))
	if err != nil {
		return OrderResult{}, err
	}

	enc := codec.NewEncryptor(cfg.RSAPublicKeyPEM)
	if !enc.Valid() {
		return OrderResult{}, bookingerr.New(bookingerr.ErrConfig, 0, "no RSA public key configured for order encryption")
	}
	sid, err := enc.RSAEncrypt(aesKey)
	if err != nil {
		return OrderResult{}, err
	}
	tim, err := enc.RSAEncrypt(timestamp)
	if err != nil {
		return OrderResult{}, err
	}

	cookieHeader, err := c.http.CookieHeader(c.baseURL)
	if err != nil {
		return OrderResult{}, err
	}

	headers := map[string]string{
		"sid":    sid,
		"tim":    tim,
		"Cookie": cookieHeader,
	}
	if cfg.Origin != "" {
		headers["Origin"] = cfg.Origin
	}
	if cfg.Referer != "" {
		headers["Referer"] = cfg.Referer
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.endpoints.OrderConfirm), strings.NewReader(encryptedBody))
	if err != nil {
		return OrderResult{}, fmt.Errorf("bookingapi: build order request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return OrderResult{}, bookingerr.New(bookingerr.ErrTransient, 0, err.Error())
	}
	defer resp.Body.Close()

	var raw []byte
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if rerr != nil {
			break
		}
	}
	raw = buf

	if !gjson.ValidBytes(raw) {
		return OrderResult{Success: false, Message: "解析响应失败"}, nil
	}
	result := gjson.ParseBytes(raw)

	if resp.StatusCode != http.StatusOK {
		msg := firstString(result, "msg", "message")
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return OrderResult{Success: false, Message: fmt.Sprintf("HTTP错误 %d: %s", resp.StatusCode, msg), Raw: result}, nil
	}

	if code, ok := firstInt(result, "code"); ok && code != 0 {
		msg := firstString(result, "msg", "message")
		if classified := bookingerr.ClassifyHTTPStatus(code, msg); classified != nil {
			return OrderResult{Success: false, Message: classified.(*bookingerr.Error).Message, Raw: result}, nil
		}
		return OrderResult{Success: false, Message: fmt.Sprintf("业务错误 %d: %s", code, msg), Raw: result}, nil
	}

	if msg := firstString(result, "msg", "message"); msg != "" && bookingerr.ContainsFailureKeyword(msg) {
		return OrderResult{Success: false, Message: fmt.Sprintf("业务错误: %s", msg), Raw: result}, nil
	}

	orderID := firstString(result, "orderId", "order_id", "id", "data")
	if orderID == "" {
		return OrderResult{Success: false, Message: "下单失败: 未返回订单ID", Raw: result}, nil
	}
	return OrderResult{Success: true, Message: fmt.Sprintf("下单成功，订单ID: %s", orderID), OrderID: orderID, Raw: result}, nil
}

// PlaceOrderWithRetry retries PlaceOrder up to maxRetries times,
// re-fetching slot data between attempts via refresh when the previous
// attempt failed, matching the upstream client's retry loop.
func (c *Client) PlaceOrderWithRetry(ctx context.Context, intent model.OrderIntent, cfg OrderConfig, maxRetries int, refresh func(ctx context.Context) (model.OrderIntent, bool)) (OrderResult, error) {
	current := intent
	var lastResult OrderResult
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := c.PlaceOrder(ctx, current, cfg)
		if err != nil {
			return result, err
		}
		if result.Success {
			return result, nil
		}
		lastResult = result
		if attempt < maxRetries-1 && refresh != nil {
			if refreshed, ok := refresh(ctx); ok {
				current = refreshed
			}
		}
	}
	return lastResult, nil
}
