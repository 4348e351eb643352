// Package portal exposes the study-abroad portal's resource endpoints as
// typed calls over the authenticated request executor.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mckhtech/uni360-go/client"
)

// Service wraps the portal's REST resources. All calls go through the
// executor, so token attachment and the 401 retry policy apply uniformly.
type Service struct {
	client *client.Client
	logger zerolog.Logger
}

func NewService(c *client.Client, logger zerolog.Logger) *Service {
	return &Service{client: c, logger: logger.With().Str("component", "portal_service").Logger()}
}

// DashboardSummary is the landing-page aggregate.
type DashboardSummary struct {
	ApplicationsTotal   int    `json:"applications_total"`
	ApplicationsPending int    `json:"applications_pending"`
	OffersReceived      int    `json:"offers_received"`
	DocumentsMissing    int    `json:"documents_missing"`
	VisaStatus          string `json:"visa_status"`
	NextDeadline        string `json:"next_deadline,omitempty"`
}

// University is one browsable institution.
type University struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	City    string `json:"city"`
	Ranking int    `json:"ranking,omitempty"`
}

// UniversityFilter narrows the university listing.
type UniversityFilter struct {
	Country string
	Course  string
	Search  string
}

// Course is one programme offered by a university.
type Course struct {
	ID           string  `json:"id"`
	UniversityID string  `json:"university_id"`
	Name         string  `json:"name"`
	Degree       string  `json:"degree"`
	Language     string  `json:"language,omitempty"`
	TuitionFee   float64 `json:"tuition_fee,omitempty"`
	ECTSCredits  int     `json:"ects_credits,omitempty"`
}

// Application is one submitted (or draft) university application.
type Application struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}

// ApplicationDraft is the payload for submitting a new application.
type ApplicationDraft struct {
	CourseID    string   `json:"course_id"`
	Intake      string   `json:"intake"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// Document is one uploaded file's metadata.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
}

// VisaStatus tracks the visa application.
type VisaStatus struct {
	Country     string `json:"country"`
	Stage       string `json:"stage"`
	Appointment string `json:"appointment,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Notification is one unread or historical notification.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := s.getObject(ctx, "/api/v1/dashboard/", nil, &summary); err != nil {
		return nil, errors.Wrap(err, "[Service.Dashboard]")
	}
	return &summary, nil
}

func (s *Service) Universities(ctx context.Context, filter UniversityFilter) ([]University, error) {
	query := url.Values{}
	if filter.Country != "" {
		query.Set("country", filter.Country)
	}
	if filter.Course != "" {
		query.Set("course", filter.Course)
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	list, err := getList[University](ctx, s, "/api/v1/universities/", query)
	return list, errors.Wrap(err, "[Service.Universities]")
}

func (s *Service) Courses(ctx context.Context, universityID string) ([]Course, error) {
	query := url.Values{"university": {universityID}}
	list, err := getList[Course](ctx, s, "/api/v1/courses/", query)
	return list, errors.Wrap(err, "[Service.Courses]")
}

func (s *Service) Applications(ctx context.Context) ([]Application, error) {
	list, err := getList[Application](ctx, s, "/api/v1/applications/", nil)
	return list, errors.Wrap(err, "[Service.Applications]")
}

func (s *Service) SubmitApplication(ctx context.Context, draft ApplicationDraft) (*Application, error) {
	resp, err := s.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/applications/",
		JSON:   draft,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.SubmitApplication]")
	}
	var app Application
	if err := decodeObject(resp.Body, &app); err != nil {
		return nil, errors.Wrap(err, "[Service.SubmitApplication]")
	}
	return &app, nil
}

func (s *Service) VisaStatus(ctx context.Context) (*VisaStatus, error) {
	var status VisaStatus
	if err := s.getObject(ctx, "/api/v1/visa/", nil, &status); err != nil {
		return nil, errors.Wrap(err, "[Service.VisaStatus]")
	}
	return &status, nil
}

func (s *Service) Notifications(ctx context.Context) ([]Notification, error) {
	list, err := getList[Notification](ctx, s, "/api/v1/notifications/", nil)
	return list, errors.Wrap(err, "[Service.Notifications]")
}

func (s *Service) Documents(ctx context.Context) ([]Document, error) {
	list, err := getList[Document](ctx, s, "/api/v1/documents/", nil)
	return list, errors.Wrap(err, "[Service.Documents]")
}

// UploadDocument ships a file as multipart form data. The multipart content
// type rides through the executor untouched; in particular no JSON content
// type is attached to the binary body.
func (s *Service) UploadDocument(ctx context.Context, name, kind string, file io.Reader) (*Document, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument] create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument] copy file")
	}
	if err := writer.WriteField("kind", kind); err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument] write kind field")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument] close writer")
	}

	resp, err := s.client.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Path:        "/api/v1/documents/",
		Body:        &buf,
		ContentType: writer.FormDataContentType(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument]")
	}
	var doc Document
	if err := decodeObject(resp.Body, &doc); err != nil {
		return nil, errors.Wrap(err, "[Service.UploadDocument]")
	}
	return &doc, nil
}

func (s *Service) getObject(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := s.client.Do(ctx, client.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return decodeObject(resp.Body, out)
}

// decodeObject accepts both a bare object and one wrapped under data, so
// callers never see the backend's envelope drift.
func decodeObject(body []byte, out any) error {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
		body = wrapped.Data
	}
	return errors.Wrap(json.Unmarshal(body, out), "[decodeObject] json.Unmarshal")
}

// getList decodes both bare arrays and data/results-wrapped listings.
func getList[T any](ctx context.Context, s *Service, path string, query url.Values) ([]T, error) {
	resp, err := s.client.Do(ctx, client.Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	return decodeList[T](resp.Body)
}

func decodeList[T any](body []byte) ([]T, error) {
	var bare []T
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Data    []T `json:"data"`
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, errors.Wrap(err, "[decodeList] unrecognized list envelope")
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return wrapped.Results, nil
}
