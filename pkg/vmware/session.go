package vmware

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/session"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"
	"go.uber.org/zap"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

// ConnectionParameters holds what is needed to reach a vSphere host.
type ConnectionParameters struct {
	Host               string
	Port               int
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// SDKURL returns the vim25 endpoint of the host.
func (p ConnectionParameters) SDKURL() string {
	return fmt.Sprintf("https://%s:%d/sdk", p.Host, p.Port)
}

// Session is an authenticated govmomi connection. It implements Conn.
type Session struct {
	id         string
	params     ConnectionParameters
	client     *govmomi.Client
	httpClient *http.Client

	mu       sync.Mutex
	released bool
}

// NewSession creates and authenticates a new vSphere session.
//
// Parameters:
//   - ctx: the context for the API request.
//   - params: host, port, credentials and TLS verification setting.
//
// Returns a ConnectivityError if:
//   - the SDK URL cannot be parsed,
//   - the vim25 client creation fails,
//   - or the host rejects the credentials.
func NewSession(ctx context.Context, params ConnectionParameters) (*Session, error) {
	u, err := soap.ParseURL(params.SDKURL())
	if err != nil {
		return nil, srvErrors.NewConnectivityError(fmt.Errorf("failed to parse vSphere URL: %w", err))
	}

	u.User = url.UserPassword(params.Username, params.Password)

	if params.InsecureSkipVerify {
		zap.S().Named("vmware").Warnw("turning off TLS certificate verification", "host", params.Host)
	}

	soapClient := soap.NewClient(u, params.InsecureSkipVerify)

	vimClient, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		soapClient.CloseIdleConnections()
		return nil, srvErrors.NewConnectivityError(fmt.Errorf("failed to create vim25 client: %w", err))
	}

	client := &govmomi.Client{
		Client:         vimClient,
		SessionManager: session.NewManager(vimClient),
	}

	if err := client.Login(ctx, u.User); err != nil {
		vimClient.CloseIdleConnections()
		return nil, srvErrors.NewConnectivityError(err)
	}

	s := &Session{
		id:     uuid.NewString(),
		params: params,
		client: client,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: params.InsecureSkipVerify,
				},
			},
		},
	}

	zap.S().Named("vmware").Debugw("vSphere session opened", "host", params.Host, "session", s.id)

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Params() ConnectionParameters {
	return s.params
}

func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// Cookie returns the cookies the SOAP client holds for the SDK endpoint,
// formatted as a Cookie header value.
func (s *Session) Cookie() string {
	sc := s.client.Client.Client
	if sc.Jar == nil {
		return ""
	}

	var parts []string
	for _, c := range sc.Jar.Cookies(sc.URL()) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Release logs out and drops idle connections. It is safe to call more than once.
func (s *Session) Release(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	if err := s.client.Logout(ctx); err != nil {
		zap.S().Named("vmware").Warnw("failed to logout from vSphere", "session", s.id, "error", err)
	}
	s.client.CloseIdleConnections()
	s.httpClient.CloseIdleConnections()

	zap.S().Named("vmware").Debugw("vSphere session released", "session", s.id)
}

// owns fails when the session was released or the handle comes from another session.
func (s *Session) owns(sessionID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || sessionID != s.id {
		return srvErrors.NewStaleHandleError(handle)
	}
	return nil
}
