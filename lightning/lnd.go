package lightning

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/karstnet/karst/encoding/bytesutil"
	"github.com/pkg/errors"
)

const defaultRequestTimeout = 10 * time.Second

// LNDClient talks to an lnd node over its REST proxy. Requests carry the
// macaroon in the Grpc-Metadata-macaroon header and trust the node's TLS
// certificate.
type LNDClient struct {
	hc       *http.Client
	baseURL  *url.URL
	macaroon string
}

// LNDOpt is a functional option for the LNDClient.
type LNDOpt func(*LNDClient)

// WithTimeout sets the timeout of the wrapped http.Client.
func WithTimeout(timeout time.Duration) LNDOpt {
	return func(c *LNDClient) {
		c.hc.Timeout = timeout
	}
}

// WithTransport replaces the underlying transport, used by tests to skip
// TLS setup.
func WithTransport(t http.RoundTripper) LNDOpt {
	return func(c *LNDClient) {
		c.hc.Transport = t
	}
}

// NewLNDClient constructs a client for the lnd REST endpoint at host.
// macaroonPath and tlsCertPath point at the node's admin (or invoice)
// macaroon and TLS certificate; either may be empty when the endpoint
// does not require them.
func NewLNDClient(host, macaroonPath, tlsCertPath string, opts ...LNDOpt) (*LNDClient, error) {
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return nil, errors.Errorf("malformed lnd host %q", host)
	}
	c := &LNDClient{
		hc:      &http.Client{Timeout: defaultRequestTimeout},
		baseURL: u,
	}
	if macaroonPath != "" {
		mac, err := os.ReadFile(macaroonPath) // #nosec G304
		if err != nil {
			return nil, errors.Wrap(err, "could not read macaroon")
		}
		c.macaroon = fmt.Sprintf("%x", mac)
	}
	if tlsCertPath != "" {
		pem, err := os.ReadFile(tlsCertPath) // #nosec G304
		if err != nil {
			return nil, errors.Wrap(err, "could not read tls certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("could not parse tls certificate")
		}
		c.hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NodeURL returns the configured lnd endpoint.
func (c *LNDClient) NodeURL() string {
	return c.baseURL.String()
}

type lndAddInvoiceRequest struct {
	Value  int64  `json:"value,string"`
	Memo   string `json:"memo,omitempty"`
	Expiry int64  `json:"expiry,string"`
}

type lndAddInvoiceResponse struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
}

type lndInvoiceResponse struct {
	Settled    bool   `json:"settled"`
	State      string `json:"state"`
	AmtPaidSat int64  `json:"amt_paid_sat,string"`
}

// CreateInvoice issues an invoice via POST /v1/invoices.
func (c *LNDClient) CreateInvoice(ctx context.Context, valueSats int64, memo string, expirySecs int64) (*Invoice, error) {
	body, err := json.Marshal(&lndAddInvoiceRequest{Value: valueSats, Memo: memo, Expiry: expirySecs})
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp := &lndAddInvoiceResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, errors.Wrap(err, "could not decode add invoice response")
	}
	rHash, err := base64.StdEncoding.DecodeString(resp.RHash)
	if err != nil || len(rHash) != 32 {
		return nil, errors.New("malformed r_hash in add invoice response")
	}
	return &Invoice{
		PaymentHash: bytesutil.ToBytes32(rHash),
		Bolt11:      resp.PaymentRequest,
	}, nil
}

// LookupInvoice reports settlement state via GET /v1/invoice/{r_hash}.
func (c *LNDClient) LookupInvoice(ctx context.Context, paymentHash [32]byte) (*InvoiceStatus, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v1/invoice/"+bytesutil.EncodeHex(paymentHash[:]), nil)
	if err != nil {
		return nil, err
	}
	resp := &lndInvoiceResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, errors.Wrap(err, "could not decode invoice response")
	}
	return &InvoiceStatus{
		Settled:     resp.Settled,
		State:       resp.State,
		AmtPaidSats: resp.AmtPaidSat,
	}, nil
}

func (c *LNDClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if c.macaroon != "" {
		req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer func() {
		_ = r.Body.Close()
	}()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read lnd response")
	}
	if r.StatusCode != http.StatusOK {
		return nil, errors.Errorf("lnd request failed with status %d: %s", r.StatusCode, bytes.TrimSpace(raw))
	}
	return raw, nil
}
