package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mckhtech/uni360-go/credentials"
	"github.com/mckhtech/uni360-go/users"
)

// Result is the normalized outcome of an authentication call.
type Result struct {
	Credentials credentials.Credentials
	User        *users.User
}

// SignUpInput carries the fields of the registration form.
type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// AuthAPI is the remote authentication surface the Manager drives. The
// production implementation talks plain HTTP: these endpoints issue tokens,
// so none of them go through the authenticated request executor.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*Result, error)
	SignUp(ctx context.Context, input SignUpInput) (*Result, error)
	GoogleLogin(ctx context.Context, idToken string) (*Result, error)
	Refresh(ctx context.Context, refreshToken string) (*credentials.Credentials, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// HTTPAuthAPI implements AuthAPI against the portal backend.
type HTTPAuthAPI struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ AuthAPI = (*HTTPAuthAPI)(nil)

func NewHTTPAuthAPI(baseURL string, httpClient *http.Client, logger zerolog.Logger) *HTTPAuthAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPAuthAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With().Str("component", "auth_api").Logger(),
	}
}

func (a *HTTPAuthAPI) Login(ctx context.Context, email, password string) (*Result, error) {
	body, err := a.post(ctx, "/api/v1/auth/login/", map[string]string{"email": email, "password": password}, "")
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPAuthAPI.Login]")
	}
	return normalizeAuthPayload(body)
}

func (a *HTTPAuthAPI) SignUp(ctx context.Context, input SignUpInput) (*Result, error) {
	body, err := a.post(ctx, "/api/v1/auth/register/", input, "")
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPAuthAPI.SignUp]")
	}
	return normalizeAuthPayload(body)
}

func (a *HTTPAuthAPI) GoogleLogin(ctx context.Context, idToken string) (*Result, error) {
	body, err := a.post(ctx, "/api/v1/auth/google/", map[string]string{"id_token": idToken}, "")
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPAuthAPI.GoogleLogin]")
	}
	return normalizeAuthPayload(body)
}

// Refresh exchanges the refresh token for a new access token. The backend
// may rotate the refresh token; when it does not, the response omits it.
func (a *HTTPAuthAPI) Refresh(ctx context.Context, refreshToken string) (*credentials.Credentials, error) {
	body, err := a.post(ctx, "/api/v1/auth/token/refresh/", map[string]string{"refresh": refreshToken}, "")
	if err != nil {
		return nil, errors.Wrap(err, "[HTTPAuthAPI.Refresh]")
	}
	var payload struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "[HTTPAuthAPI.Refresh] decode response")
	}
	if payload.Access == "" {
		return nil, errors.New("[HTTPAuthAPI.Refresh] response carried no access token")
	}
	return &credentials.Credentials{AccessToken: payload.Access, RefreshToken: payload.Refresh}, nil
}

func (a *HTTPAuthAPI) Logout(ctx context.Context, accessToken, refreshToken string) error {
	_, err := a.post(ctx, "/api/v1/auth/logout/", map[string]string{"refresh": refreshToken}, accessToken)
	return errors.Wrap(err, "[HTTPAuthAPI.Logout]")
}

func (a *HTTPAuthAPI) post(ctx context.Context, path string, payload any, bearer string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("status %d: %s", resp.StatusCode, backendMessage(body))
	}
	return body, nil
}

// backendMessage pulls a human-readable error out of a backend error body.
func backendMessage(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Detail, payload.Message, payload.Error} {
			if msg != "" {
				return msg
			}
		}
	}
	return string(body)
}

// normalizeAuthPayload maps the backend's varying response envelopes onto a
// single Result. Tokens have appeared as access/refresh, as
// access_token/refresh_token, and nested under data; the user object appears
// bare or under user / data.user.
func normalizeAuthPayload(body []byte) (*Result, error) {
	var envelope struct {
		Access       string          `json:"access"`
		Refresh      string          `json:"refresh"`
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		Token        string          `json:"token"`
		User         json.RawMessage `json:"user"`
		Data         struct {
			Access       string          `json:"access"`
			Refresh      string          `json:"refresh"`
			AccessToken  string          `json:"access_token"`
			RefreshToken string          `json:"refresh_token"`
			Token        string          `json:"token"`
			User         json.RawMessage `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, "[normalizeAuthPayload] decode response")
	}

	result := &Result{}
	for _, candidate := range []string{envelope.Access, envelope.AccessToken, envelope.Token, envelope.Data.Access, envelope.Data.AccessToken, envelope.Data.Token} {
		if candidate != "" {
			result.Credentials.AccessToken = candidate
			break
		}
	}
	for _, candidate := range []string{envelope.Refresh, envelope.RefreshToken, envelope.Data.Refresh, envelope.Data.RefreshToken} {
		if candidate != "" {
			result.Credentials.RefreshToken = candidate
			break
		}
	}
	if result.Credentials.AccessToken == "" {
		return nil, errors.New("[normalizeAuthPayload] response carried no access token")
	}

	rawUser := envelope.User
	if len(rawUser) == 0 {
		rawUser = envelope.Data.User
	}
	if len(rawUser) > 0 {
		var user users.User
		if err := json.Unmarshal(rawUser, &user); err != nil {
			return nil, errors.Wrap(err, "[normalizeAuthPayload] decode user")
		}
		result.User = &user
	}
	return result, nil
}
