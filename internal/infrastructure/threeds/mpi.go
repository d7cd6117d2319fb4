// Package threeds talks to card-brand 3-D Secure directory servers through
// their XML merchant plug-in (MPI) interface.
package threeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
	"github.com/DanielPopoola/payment-security-core/internal/infrastructure/telemetry"
	"github.com/beevik/etree"
	"go.opentelemetry.io/otel/attribute"
)

const messageVersion = "2.2.0"

// MPIError is a transport level failure or an <Error> element in a reply.
type MPIError struct {
	Provider   domain.ProviderName
	StatusCode int
	Code       string
	Message    string
}

func (e *MPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s mpi error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s mpi returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// MPIClient is the ThreeDSProvider for one card brand.
type MPIClient struct {
	provider     domain.ProviderName
	endpoint     string
	merchantName string
	httpClient   *http.Client
}

var _ application.ThreeDSProvider = (*MPIClient)(nil)

func NewMPIClient(provider domain.ProviderName, endpoint, merchantName string, httpClient *http.Client) *MPIClient {
	return &MPIClient{
		provider:     provider,
		endpoint:     endpoint,
		merchantName: merchantName,
		httpClient:   httpClient,
	}
}

func (c *MPIClient) Name() domain.ProviderName { return c.provider }

func (c *MPIClient) InitiateAuthentication(ctx context.Context, req application.ThreeDSInitiateRequest) (resp *application.ThreeDSInitiateResponse, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "threeds.initiate",
		attribute.String("threeds.provider", string(c.provider)),
		attribute.String("threeds.transaction_id", req.TransactionID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	doc, message := newEnvelope(req.TransactionID)
	pareq := message.CreateElement("PAReq")
	pareq.CreateElement("version").SetText(messageVersion)

	merchant := pareq.CreateElement("Merchant")
	merchant.CreateElement("merID").SetText(req.MerchantID)
	merchant.CreateElement("name").SetText(c.merchantName)
	merchant.CreateElement("url").SetText(req.ReturnURL)

	purchase := pareq.CreateElement("Purchase")
	purchase.CreateElement("xid").SetText(req.TransactionID)
	purchase.CreateElement("purchAmount").SetText(req.Amount)
	purchase.CreateElement("currency").SetText(req.Currency)
	purchase.CreateElement("exponent").SetText("2")

	ch := pareq.CreateElement("CH")
	ch.CreateElement("acctID").SetText(req.CardToken)
	ch.CreateElement("maskedPAN").SetText(req.MaskedPAN)
	ch.CreateElement("expiry").SetText(fmt.Sprintf("%02d%02d", req.ExpiryYear%100, req.ExpiryMonth))

	if addr := req.BillingAddress; addr != nil {
		billing := ch.CreateElement("BillingAddress")
		billing.CreateElement("line1").SetText(addr.Line1)
		if addr.Line2 != "" {
			billing.CreateElement("line2").SetText(addr.Line2)
		}
		billing.CreateElement("city").SetText(addr.City)
		if addr.State != "" {
			billing.CreateElement("state").SetText(addr.State)
		}
		billing.CreateElement("postCode").SetText(addr.PostalCode)
		billing.CreateElement("country").SetText(addr.Country)
	}
	if req.BrowserInfo != nil {
		pareq.CreateElement("Browser").SetText(*req.BrowserInfo)
	}
	if req.DeviceData != nil {
		pareq.CreateElement("Device").SetText(*req.DeviceData)
	}

	reply, err := c.send(ctx, doc)
	if err != nil {
		return nil, err
	}

	enrollment := reply.FindElement("EnrollmentResponse")
	if enrollment == nil {
		return nil, fmt.Errorf("%s mpi reply has no EnrollmentResponse", c.provider)
	}

	status := strings.ToUpper(childText(enrollment, "enrolled"))
	if status == "" {
		return nil, fmt.Errorf("%s mpi reply has no enrollment status", c.provider)
	}

	return &application.ThreeDSInitiateResponse{
		Status:              status,
		AcsURL:              optionalText(enrollment, "acsURL"),
		PaReq:               optionalText(enrollment, "PaReq"),
		AuthenticationProof: proofFrom(enrollment),
	}, nil
}

func (c *MPIClient) CompleteAuthentication(ctx context.Context, transactionID, paRes string) (resp *application.ThreeDSCompleteResponse, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "threeds.complete",
		attribute.String("threeds.provider", string(c.provider)),
		attribute.String("threeds.transaction_id", transactionID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	doc, message := newEnvelope(transactionID)
	pares := message.CreateElement("PARes")
	pares.CreateElement("xid").SetText(transactionID)
	pares.CreateElement("payload").SetText(paRes)

	reply, err := c.send(ctx, doc)
	if err != nil {
		return nil, err
	}

	result := reply.FindElement("AuthenticationResult")
	if result == nil {
		return nil, fmt.Errorf("%s mpi reply has no AuthenticationResult", c.provider)
	}

	// Y is a full authentication and A an attempted one; both carry a CAVV.
	status := strings.ToUpper(childText(result, "status"))
	if status == "Y" || status == "A" {
		return &application.ThreeDSCompleteResponse{
			Success:             true,
			AuthenticationProof: proofFrom(result),
		}, nil
	}

	reason := childText(result, "reason")
	if reason == "" {
		reason = fmt.Sprintf("authentication status %q", status)
	}
	return &application.ThreeDSCompleteResponse{Success: false, ErrorMessage: &reason}, nil
}

func newEnvelope(transactionID string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("ThreeDSecure")
	message := root.CreateElement("Message")
	message.CreateAttr("id", transactionID)
	return doc, message
}

// send posts the document and returns the reply's Message element.
func (c *MPIClient) send(ctx context.Context, doc *etree.Document) (*etree.Element, error) {
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize mpi request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create mpi request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/xml; charset=utf-8")
	httpReq.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send mpi request to %s: %w", c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mpi response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &MPIError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	reply := etree.NewDocument()
	if err := reply.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("parse mpi response (HTTP %d): %w", resp.StatusCode, err)
	}

	message := reply.FindElement("/ThreeDSecure/Message")
	if message == nil {
		return nil, fmt.Errorf("%s mpi reply has no Message element", c.provider)
	}
	if fault := message.SelectElement("Error"); fault != nil {
		return nil, &MPIError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Code:       childText(fault, "errorCode"),
			Message:    childText(fault, "errorMessage"),
		}
	}
	return message, nil
}

func childText(parent *etree.Element, tag string) string {
	if el := parent.SelectElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func optionalText(parent *etree.Element, tag string) *string {
	if text := childText(parent, tag); text != "" {
		return &text
	}
	return nil
}

func proofFrom(el *etree.Element) domain.AuthenticationProof {
	return domain.AuthenticationProof{
		CAVV:            optionalText(el, "cavv"),
		ECI:             optionalText(el, "eci"),
		XID:             optionalText(el, "xid"),
		DSTransactionID: optionalText(el, "dsTransID"),
	}
}
