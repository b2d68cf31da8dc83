package lib

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"nftdrops/src/config"

	"github.com/tidwall/gjson"
)

var ErrMailchimpNotConfigured = errors.New("mailchimp is not configured")

// MailchimpError carries the status and detail of a failed API call.
type MailchimpError struct {
	Status int
	Title  string
	Detail string
}

func (e *MailchimpError) Error() string {
	return fmt.Sprintf("mailchimp: %d %s: %s", e.Status, e.Title, e.Detail)
}

type MailchimpMember struct {
	ID           string   `json:"id"`
	EmailAddress string   `json:"email_address"`
	Status       string   `json:"status"`
	FirstName    string   `json:"firstName,omitempty"`
	LastName     string   `json:"lastName,omitempty"`
	Tags         []string `json:"tags"`
}

type MailchimpClient struct {
	BaseURL string
	APIKey  string
	ListID  string
	Client  *http.Client
}

// NewMailchimpClient derives the data center host from the key suffix.
func NewMailchimpClient(apiKey, listID string) *MailchimpClient {
	dc := "us1"
	if i := strings.LastIndex(apiKey, "-"); i >= 0 {
		dc = apiKey[i+1:]
	}
	return &MailchimpClient{
		BaseURL: fmt.Sprintf("https://%s.%s", dc, config.DEFAULT_MAILCHIMP_HOST),
		APIKey:  apiKey,
		ListID:  listID,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func SubscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func (m *MailchimpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if m.APIKey == "" || m.ListID == "" {
		return nil, ErrMailchimpNotConfigured
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("nftdrops", m.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := m.Client.Do(req)
	if err != nil {
		log.Printf("[Mailchimp] %s %s failed: %s\n", method, path, err.Error())
		return nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		return nil, &MailchimpError{
			Status: res.StatusCode,
			Title:  gjson.GetBytes(raw, "title").String(),
			Detail: gjson.GetBytes(raw, "detail").String(),
		}
	}
	return raw, nil
}

func (m *MailchimpClient) memberPath(email string) string {
	return fmt.Sprintf("/lists/%s/members/%s", m.ListID, SubscriberHash(email))
}

// Subscribe adds or updates a list member, leaving an existing status as is.
func (m *MailchimpClient) Subscribe(ctx context.Context, email, firstName, lastName string, tags []string) (*MailchimpMember, error) {
	payload := map[string]any{
		"email_address": email,
		"status_if_new": "subscribed",
		"merge_fields": map[string]string{
			"FNAME": firstName,
			"LNAME": lastName,
		},
	}
	raw, err := m.do(ctx, http.MethodPut, m.memberPath(email), payload)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := m.AddTags(ctx, email, tags); err != nil {
			return nil, err
		}
	}
	member := parseMember(raw)
	member.Tags = append(member.Tags, tags...)
	return member, nil
}

func (m *MailchimpClient) AddTags(ctx context.Context, email string, tags []string) error {
	entries := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		entries = append(entries, map[string]string{"name": t, "status": "active"})
	}
	_, err := m.do(ctx, http.MethodPost, m.memberPath(email)+"/tags", map[string]any{"tags": entries})
	return err
}

func (m *MailchimpClient) GetMember(ctx context.Context, email string) (*MailchimpMember, error) {
	raw, err := m.do(ctx, http.MethodGet, m.memberPath(email), nil)
	if err != nil {
		return nil, err
	}
	return parseMember(raw), nil
}

func parseMember(raw []byte) *MailchimpMember {
	r := gjson.ParseBytes(raw)
	member := &MailchimpMember{
		ID:           r.Get("id").String(),
		EmailAddress: r.Get("email_address").String(),
		Status:       r.Get("status").String(),
		FirstName:    r.Get("merge_fields.FNAME").String(),
		LastName:     r.Get("merge_fields.LNAME").String(),
		Tags:         []string{},
	}
	for _, t := range r.Get("tags.#.name").Array() {
		member.Tags = append(member.Tags, t.String())
	}
	return member
}
