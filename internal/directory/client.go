// Package directory is the HTTP client for the membership, staff and
// visit-booking backend.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/previmed/visit-assistant/pkg/logging"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultCreateTimeout = 40 * time.Second
	maxErrorBody         = 512
)

// Observer receives per-call latency and outcome.
type Observer interface {
	ObserveDirectoryRequest(operation, outcome string, seconds float64)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	logger        *logging.Logger
	tracer        trace.Tracer
	timeout       time.Duration
	createTimeout time.Duration
	observer      Observer
	now           func() time.Time
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeouts overrides the lookup and visit-creation deadlines.
// Non-positive values keep the defaults.
func WithTimeouts(lookup, create time.Duration) ClientOption {
	return func(c *Client) {
		if lookup > 0 {
			c.timeout = lookup
		}
		if create > 0 {
			c.createTimeout = create
		}
	}
}

// WithObserver records call latency, typically into Prometheus.
func WithObserver(observer Observer) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithClock overrides the timestamp source used for new visits.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a backend client. baseURL has no trailing slash, e.g.
// "https://previmedbackend-q73n.onrender.com".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		logger:        logging.Default(),
		tracer:        otel.Tracer("previmed.internal.directory"),
		timeout:       defaultTimeout,
		createTimeout: defaultCreateTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	return c
}

// VerifyMembership looks up an active membership by document number.
func (c *Client) VerifyMembership(ctx context.Context, document string) (Membership, error) {
	const op = "verify_membership"
	document = strings.TrimSpace(document)
	if document == "" {
		return Membership{}, fmt.Errorf("directory: document is required: %w", ErrMembershipNotFound)
	}

	var body membershipResponse
	status, err := c.do(ctx, op, c.timeout, http.MethodGet, "/membresias/activa/"+url.PathEscape(document), nil, &body)
	if err != nil {
		if status == http.StatusNotFound {
			return Membership{}, fmt.Errorf("directory: verify membership: %w", ErrMembershipNotFound)
		}
		return Membership{}, fmt.Errorf("directory: verify membership: %w", err)
	}
	if !body.OK || body.Paciente == nil {
		c.logger.Info("membership not active", "document", logging.MaskDigits(document), "message", body.Message)
		return Membership{}, fmt.Errorf("directory: verify membership: %w", ErrMembershipNotFound)
	}

	m := Membership{
		PatientID:   body.Paciente.ID,
		PatientName: strings.TrimSpace(body.Paciente.Nombre),
	}
	if body.Membresia != nil {
		m.MembershipID = body.Membresia.ID
		m.ContractNumber = body.Membresia.NumeroContrato
	}
	return m, nil
}

// AvailableDoctors returns doctors that are active and available, in
// backend order.
func (c *Client) AvailableDoctors(ctx context.Context) ([]Doctor, error) {
	var body doctorsResponse
	if _, err := c.do(ctx, "list_doctors", c.timeout, http.MethodGet, "/medicos", nil, &body); err != nil {
		return nil, fmt.Errorf("directory: list doctors: %w", err)
	}

	doctors := make([]Doctor, 0, len(body.Data))
	for _, raw := range body.Data {
		d := Doctor{
			ID:        raw.ID,
			FirstName: strings.TrimSpace(raw.Usuario.Nombre),
			LastName:  strings.TrimSpace(raw.Usuario.Apellido),
			Active:    raw.Estado,
			Available: raw.Disponibilidad,
		}
		if d.Offerable() {
			doctors = append(doctors, d)
		}
	}
	return doctors, nil
}

// ActiveNeighborhoods returns the active service neighborhoods, in backend
// order.
func (c *Client) ActiveNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	var body neighborhoodsResponse
	if _, err := c.do(ctx, "list_neighborhoods", c.timeout, http.MethodGet, "/barrios", nil, &body); err != nil {
		return nil, fmt.Errorf("directory: list neighborhoods: %w", err)
	}

	out := make([]Neighborhood, 0, len(body.Msj))
	for _, raw := range body.Msj {
		if !raw.Estado {
			continue
		}
		out = append(out, Neighborhood{ID: raw.ID, Name: strings.TrimSpace(raw.Nombre), Active: true})
	}
	return out, nil
}

// CreateVisit books a visit. A receipt is only returned when the backend
// answered 2xx with a visit identifier.
func (c *Client) CreateVisit(ctx context.Context, req VisitRequest) (VisitReceipt, error) {
	scheduled := req.ScheduledAt
	if scheduled.IsZero() {
		scheduled = c.now()
	}
	payload := createVisitPayload{
		FechaVisita: scheduled.Format(time.RFC3339),
		Descripcion: req.Reason,
		Direccion:   req.Address,
		Estado:      true,
		Telefono:    req.Phone,
		PacienteID:  req.PatientID,
		MedicoID:    req.DoctorID,
		BarrioID:    req.NeighborhoodID,
	}

	var body map[string]json.RawMessage
	if _, err := c.do(ctx, "create_visit", c.createTimeout, http.MethodPost, "/visitas", payload, &body); err != nil {
		return VisitReceipt{}, fmt.Errorf("directory: create visit: %w", err)
	}

	if okRaw, present := body["ok"]; present {
		var ok bool
		if err := json.Unmarshal(okRaw, &ok); err == nil && !ok {
			return VisitReceipt{}, fmt.Errorf("directory: create visit rejected: %w", ErrUnexpectedResponse)
		}
	}
	id := visitID(body)
	if id == "" {
		return VisitReceipt{}, fmt.Errorf("directory: create visit returned no identifier: %w", ErrUnexpectedResponse)
	}
	return VisitReceipt{VisitID: id}, nil
}

// visitID finds the identifier in the shapes the backend has been seen to
// return: {id_visita}, {id}, {data:{id_visita|id}}.
func visitID(body map[string]json.RawMessage) string {
	for _, key := range []string{"id_visita", "id"} {
		if id := rawID(body[key]); id != "" {
			return id
		}
	}
	if data, ok := body["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil {
			return visitID(nested)
		}
	}
	return ""
}

// rawID accepts a non-empty string or a positive number. Zero, booleans,
// objects and arrays are not identifiers.
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return ""
	}
	switch s[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		str = strings.TrimSpace(str)
		if str == "0" {
			return ""
		}
		return str
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || n <= 0 {
			return ""
		}
		return s
	default:
		return ""
	}
}

// do performs one backend call under its own deadline and decodes a 2xx JSON
// body into out. The returned status is 0 when no response was received.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method, path string, payload any, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "directory."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("directory.operation", op),
	))
	defer span.End()

	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, payload, out)
	elapsed := time.Since(start).Seconds()
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.observe(op, outcomeFor(status, err), elapsed)
		c.logger.Warn("directory call failed", "operation", op, "status", status, "error", err)
		return status, err
	}
	c.observe(op, "ok", elapsed)
	return status, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrUnexpectedResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return resp.StatusCode, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return resp.StatusCode, fmt.Errorf("%w: decode body: %v", ErrUnexpectedResponse, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) observe(op, outcome string, seconds float64) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveDirectoryRequest(op, outcome, seconds)
}

func outcomeFor(status int, err error) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnexpectedResponse):
		return "invalid"
	default:
		return "error"
	}
}
