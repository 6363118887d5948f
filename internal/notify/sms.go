package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// smsAPIVersion pins the Azure Communication Services SMS REST API version.
const smsAPIVersion = "2021-03-07"

// AzureSMS sends text messages through Azure Communication Services.
// Requests are signed with the HMAC-SHA256 scheme ACS requires; the endpoint
// and signing key come from the account connection string.
type AzureSMS struct {
	endpoint  *url.URL
	accessKey []byte
	// From is the ACS-purchased sending number, To the default recipients.
	From string
	To   []string
}

// smsSendResult mirrors one entry of the ACS send response value array.
type smsSendResult struct {
	To             string `json:"to"`
	MessageID      string `json:"messageId"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	Successful     bool   `json:"successful"`
	ErrorMessage   string `json:"errorMessage"`
}

// NewAzureSMS builds an SMS provider from an ACS connection string
// ("endpoint=https://...;accesskey=BASE64"), a sending number, and default
// recipients. Numbers are normalized up front so a bad configuration fails at
// construction rather than on first send.
func NewAzureSMS(connectionString, from string, recipients []string) (*AzureSMS, error) {
	endpoint, key, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	if from == "" {
		return nil, errors.New("no sms sending number provided")
	}
	normFrom, err := NormalizePhone(from)
	if err != nil {
		return nil, fmt.Errorf("sending number: %w", err)
	}
	if len(recipients) == 0 {
		return nil, errors.New("no sms recipients provided")
	}
	normTo := make([]string, 0, len(recipients))
	for _, r := range recipients {
		n, err := NormalizePhone(r)
		if err != nil {
			return nil, err
		}
		normTo = append(normTo, n)
	}
	return &AzureSMS{endpoint: endpoint, accessKey: key, From: normFrom, To: normTo}, nil
}

// NewAzureSMSFromEnv builds an SMS provider from the AZURE_SMS_CONNECTION_STRING,
// AZURE_SMS_NUMBER and SMS_NUMBER environment variables. Explicit recipients
// win over SMS_NUMBER.
func NewAzureSMSFromEnv(recipients []string) (*AzureSMS, error) {
	conn := os.Getenv("AZURE_SMS_CONNECTION_STRING")
	if conn == "" {
		return nil, errors.New("AZURE_SMS_CONNECTION_STRING is not set")
	}
	from := os.Getenv("AZURE_SMS_NUMBER")
	if from == "" {
		return nil, errors.New("AZURE_SMS_NUMBER is not set")
	}
	if len(recipients) == 0 {
		if v := os.Getenv("SMS_NUMBER"); v != "" {
			recipients = strings.Split(v, ",")
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("no recipient phone numbers provided and SMS_NUMBER is not set")
	}
	return NewAzureSMS(conn, from, recipients)
}

// parseConnectionString extracts the endpoint URL and decoded access key from
// an ACS connection string. Key names are case-insensitive; the base64 value
// may itself contain '=' padding, so values are split on the first '=' only.
func parseConnectionString(conn string) (*url.URL, []byte, error) {
	if conn == "" {
		return nil, nil, errors.New("empty sms connection string")
	}
	var endpoint *url.URL
	var key []byte
	for _, part := range strings.Split(conn, ";") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, nil, fmt.Errorf("malformed connection string segment %q", part)
		}
		switch strings.ToLower(kv[0]) {
		case "endpoint":
			u, err := url.Parse(kv[1])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid endpoint in connection string: %w", err)
			}
			endpoint = u
		case "accesskey":
			k, err := base64.StdEncoding.DecodeString(kv[1])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid access key in connection string: %w", err)
			}
			key = k
		}
	}
	if endpoint == nil {
		return nil, nil, errors.New("connection string is missing endpoint")
	}
	if len(key) == 0 {
		return nil, nil, errors.New("connection string is missing accesskey")
	}
	return endpoint, key, nil
}

// Name returns the provider name.
func (a *AzureSMS) Name() string {
	return "SMS"
}

// Send delivers the message to all configured recipients. A non-empty title
// is prefixed since SMS has no subject line. ACS accepts the batch with 202
// but reports per-recipient outcomes; every failed recipient becomes an error.
func (a *AzureSMS) Send(ctx context.Context, title, message string) error {
	body := message
	if title != "" {
		body = title + ": " + message
	}

	recipients := make([]map[string]string, 0, len(a.To))
	for _, to := range a.To {
		recipients = append(recipients, map[string]string{"to": to})
	}
	payload := map[string]interface{}{
		"from":          a.From,
		"smsRecipients": recipients,
		"message":       body,
		"smsSendOptions": map[string]bool{
			"enableDeliveryReport": false,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	pathAndQuery := "/sms?api-version=" + smsAPIVersion
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(a.endpoint.String(), "/")+pathAndQuery, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.signRequest(req, pathAndQuery, raw)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms api returned status %d", resp.StatusCode)
	}

	var result struct {
		Value []smsSendResult `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	var errs []error
	for _, r := range result.Value {
		if !r.Successful {
			errs = append(errs, fmt.Errorf("sms to %s failed: %s", r.To, r.ErrorMessage))
		}
	}
	return errors.Join(errs...)
}

// signRequest applies the ACS HMAC-SHA256 authentication scheme: the UTC
// date, host, and base64 SHA-256 of the body are signed with the access key.
func (a *AzureSMS) signRequest(req *http.Request, pathAndQuery string, body []byte) {
	date := time.Now().UTC().Format(http.TimeFormat)
	contentHash := sha256.Sum256(body)
	contentHashB64 := base64.StdEncoding.EncodeToString(contentHash[:])

	stringToSign := "POST\n" + pathAndQuery + "\n" + date + ";" + req.URL.Host + ";" + contentHashB64
	mac := hmac.New(sha256.New, a.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHashB64)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
