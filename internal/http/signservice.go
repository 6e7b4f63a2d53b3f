package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rosterlabs/signsync/internal/mapping"
	"github.com/rosterlabs/signsync/internal/roster"
)

// SignService talks to one signing-service organization's REST API and
// implements roster.Service.
type SignService struct {
	Client         *retryablehttp.Client
	URL            string
	IntegrationKey string
	APIVersion     string
	Console        bool
}

// NewSignService creates a client for the API at url, authenticated with the
// given integration key. console indicates whether the target organization
// supports user lifecycle management.
func NewSignService(url, integrationKey, apiVersion string, console bool, timeout time.Duration) SignService {
	return SignService{
		Client:         NewRetryableClient(timeout),
		URL:            url,
		IntegrationKey: integrationKey,
		APIVersion:     apiVersion,
		Console:        console,
	}
}

// ManagesUsers implements roster.Service.
func (c *SignService) ManagesUsers() bool {
	return c.Console
}

// ValidateKey checks that the integration key is accepted by the service.
func (c *SignService) ValidateKey(ctx context.Context) error {
	endpoint := "baseUris"
	if c.APIVersion == "v5" {
		endpoint = "base_uris"
	}
	_, err := c.do(ctx, http.MethodGet, endpoint, nil, http.StatusOK)
	return err
}

type groupInfo struct {
	GroupName string `json:"groupName"`
	GroupID   string `json:"groupId"`
}

// Groups implements roster.Service.
func (c *SignService) Groups(ctx context.Context) (map[string]string, error) {
	body, err := c.do(ctx, http.MethodGet, "groups", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var list struct {
		GroupInfoList []groupInfo `json:"groupInfoList"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, protocolErr("groups", http.StatusOK, body)
	}

	groups := make(map[string]string, len(list.GroupInfoList))
	for _, g := range list.GroupInfoList {
		groups[roster.Fold(g.GroupName)] = g.GroupID
	}
	return groups, nil
}

// CreateGroup implements roster.Service.
func (c *SignService) CreateGroup(ctx context.Context, name string) (string, error) {
	payload := map[string]string{"groupName": name}
	body, err := c.do(ctx, http.MethodPost, "groups", payload, http.StatusCreated)
	if err != nil {
		return "", err
	}

	var created struct {
		GroupID string `json:"groupId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", protocolErr("groups", http.StatusCreated, body)
	}
	return created.GroupID, nil
}

// flexRoles tolerates the roles field arriving as either a string or a list.
type flexRoles []string

func (r *flexRoles) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*r = list
		return nil
	}
	var single string
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*r = []string{single}
	return nil
}

type userInfo struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Group      string    `json:"group"`
	Roles      flexRoles `json:"roles"`
	UserStatus string    `json:"userStatus"`
}

// Users implements roster.Service.
func (c *SignService) Users(ctx context.Context) (map[string]roster.Entry, error) {
	body, err := c.do(ctx, http.MethodGet, "users", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var list struct {
		UserInfoList []userInfo `json:"userInfoList"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, protocolErr("users", http.StatusOK, body)
	}

	users := make(map[string]roster.Entry, len(list.UserInfoList))
	for _, u := range list.UserInfoList {
		roles := []string(u.Roles)
		if len(roles) == 0 {
			roles = []string{mapping.RoleNormalUser}
		}
		users[roster.Fold(u.Email)] = roster.Entry{
			UserID:    u.UserID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Group:     u.Group,
			Roles:     roles,
			Status:    roster.Status(u.UserStatus),
		}
	}
	return users, nil
}

// InsertUser implements roster.Service.
func (c *SignService) InsertUser(ctx context.Context, u roster.UserPayload) error {
	_, err := c.do(ctx, http.MethodPost, "users", u, http.StatusCreated)
	return err
}

// UpdateUser implements roster.Service.
func (c *SignService) UpdateUser(ctx context.Context, userID string, u roster.UserPayload) error {
	_, err := c.do(ctx, http.MethodPut, "users/"+userID, u, http.StatusOK)
	return err
}

// DeactivateUser implements roster.Service.
func (c *SignService) DeactivateUser(ctx context.Context, userID string) error {
	payload := map[string]string{"userStatus": string(roster.StatusInactive)}
	_, err := c.do(ctx, http.MethodPut, "users/"+userID+"/status", payload, http.StatusOK)
	return err
}

func (c *SignService) do(ctx context.Context, method, endpoint string, payload interface{}, wantStatus int) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.URL, endpoint)

	var reqBody io.Reader
	if payload != nil {
		var b bytes.Buffer
		if err := json.NewEncoder(&b).Encode(payload); err != nil {
			return nil, err
		}
		reqBody = &b
	}

	req, err := NewRetryableRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, classify(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(endpoint, err)
	}

	if resp.StatusCode != wantStatus {
		return nil, protocolErr(endpoint, resp.StatusCode, body)
	}

	return body, nil
}

// setAuth applies the auth header scheme matching the configured API version.
func (c *SignService) setAuth(req *retryablehttp.Request) {
	if c.APIVersion == "v6" {
		req.Header.Set("Authorization", "Bearer "+c.IntegrationKey)
		return
	}
	req.Header.Set("Access-Token", c.IntegrationKey)
}
