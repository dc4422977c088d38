// Package altinn holds the HTTP clients for the reporting platform: the
// app/storage instance API and the varsling notification API.
package altinn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/time/rate"

	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

// TokenSource supplies bearer tokens for platform calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// InstanceClient talks to the app instance API and the storage API.
// All calls share one client-side rate limiter.
type InstanceClient struct {
	httpc       *http.Client
	tokens      TokenSource
	appBase     string
	storageBase string
	owner       string
	limiter     *rate.Limiter
	log         *logger.Logger
}

// NewInstanceClient creates a rate-limited instance API client.
func NewInstanceClient(cfg config.PlatformAPIConfig, tokens TokenSource, log *logger.Logger) *InstanceClient {
	rps := cfg.GetAltinnRateLimit()
	if rps <= 0 {
		rps = 5
	}
	return &InstanceClient{
		httpc:       &http.Client{Timeout: 60 * time.Second},
		tokens:      tokens,
		appBase:     cfg.GetAltinnAppBaseURL(),
		storageBase: cfg.GetAltinnStorageURL(),
		owner:       cfg.GetAltinnOwnerOrg(),
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:         log,
	}
}

// InstanceDescriptor is the instance part of a create request.
type InstanceDescriptor struct {
	AppID         string          `json:"appId"`
	InstanceOwner DescriptorOwner `json:"instanceOwner"`
	VisibleAfter  string          `json:"visibleAfter,omitempty"`
	DueBefore     string          `json:"dueBefore,omitempty"`
}

// DescriptorOwner identifies the receiving organisation.
type DescriptorOwner struct {
	OrganisationNumber string `json:"organisationNumber"`
}

func (c *InstanceClient) instanceURL(app, partyID, instanceGUID string) string {
	return fmt.Sprintf("%s/%s/%s/instances/%s/%s", c.appBase, c.owner, app, partyID, instanceGUID)
}

// GetInstance fetches an instance's metadata.
func (c *InstanceClient) GetInstance(ctx context.Context, app, partyID, instanceGUID string) (report.Instance, error) {
	var inst report.Instance
	err := c.getJSON(ctx, "altinn.GetInstance", c.instanceURL(app, partyID, instanceGUID), &inst)
	return inst, err
}

// GetInstanceData fetches one data element's raw payload.
func (c *InstanceClient) GetInstanceData(ctx context.Context, app, partyID, instanceGUID, dataID string) (json.RawMessage, error) {
	url := c.instanceURL(app, partyID, instanceGUID) + "/data/" + dataID
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.checkStatus("altinn.GetInstanceData", resp); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "read data payload", err).WithOp("altinn.GetInstanceData")
	}
	return raw, nil
}

// CreateInstance posts a new instance with its prefilled data model as a
// multipart body.
func (c *InstanceClient) CreateInstance(ctx context.Context, app string, desc InstanceDescriptor, datamodel any) (report.Instance, error) {
	if desc.AppID == "" {
		desc.AppID = c.owner + "/" + app
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeJSONPart(w, "instance", desc); err != nil {
		return report.Instance{}, apperr.Wrap(apperr.KindInternal, "encode instance part", err).WithOp("altinn.CreateInstance")
	}
	if err := writeJSONPart(w, "model", datamodel); err != nil {
		return report.Instance{}, apperr.Wrap(apperr.KindInternal, "encode data model part", err).WithOp("altinn.CreateInstance")
	}
	if err := w.Close(); err != nil {
		return report.Instance{}, apperr.Wrap(apperr.KindInternal, "finish multipart body", err).WithOp("altinn.CreateInstance")
	}

	url := fmt.Sprintf("%s/%s/%s/instances", c.appBase, c.owner, app)
	resp, err := c.do(ctx, http.MethodPost, url, &buf, w.FormDataContentType())
	if err != nil {
		return report.Instance{}, err
	}
	defer resp.Body.Close()
	if err := c.checkStatus("altinn.CreateInstance", resp); err != nil {
		return report.Instance{}, err
	}

	var inst report.Instance
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		return report.Instance{}, apperr.Wrap(apperr.KindDecode, "decode created instance", err).WithOp("altinn.CreateInstance")
	}
	return inst, nil
}

func writeJSONPart(w *multipart.Writer, name string, v any) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s.json"`, name, name))
	header.Set("Content-Type", "application/json")
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	return json.NewEncoder(part).Encode(v)
}

// TagInstanceData adds a tag to a data element.
func (c *InstanceClient) TagInstanceData(ctx context.Context, app, partyID, instanceGUID, dataID, tag string) error {
	url := c.instanceURL(app, partyID, instanceGUID) + "/data/" + dataID + "/tags"
	body, _ := json.Marshal(tag)

	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkStatus("altinn.TagInstanceData", resp)
}

// DeleteTag removes a tag from a data element.
func (c *InstanceClient) DeleteTag(ctx context.Context, app, partyID, instanceGUID, dataID, tag string) error {
	url := c.instanceURL(app, partyID, instanceGUID) + "/data/" + dataID + "/tags/" + tag
	resp, err := c.do(ctx, http.MethodDelete, url, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkStatus("altinn.DeleteTag", resp)
}

// CompleteInstance marks the service owner's processing of an instance as
// complete.
func (c *InstanceClient) CompleteInstance(ctx context.Context, app, partyID, instanceGUID string) error {
	url := c.instanceURL(app, partyID, instanceGUID) + "/complete"
	resp, err := c.do(ctx, http.MethodPost, url, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkStatus("altinn.CompleteInstance", resp)
}

// DeleteInstance soft-deletes an instance, or hard-deletes it when hard is
// set.
func (c *InstanceClient) DeleteInstance(ctx context.Context, app, partyID, instanceGUID string, hard bool) error {
	url := c.instanceURL(app, partyID, instanceGUID)
	if hard {
		url += "?hard=true"
	}
	resp, err := c.do(ctx, http.MethodDelete, url, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkStatus("altinn.DeleteInstance", resp)
}

// ListStoredInstances pages through the storage API for all instances of
// one app.
func (c *InstanceClient) ListStoredInstances(ctx context.Context, app string) ([]report.Instance, error) {
	url := fmt.Sprintf("%s/instances?org=%s&appId=%s/%s&size=100", c.storageBase, c.owner, c.owner, app)

	var all []report.Instance
	for url != "" {
		var page struct {
			Instances []report.Instance `json:"instances"`
			Next      string            `json:"next"`
		}
		if err := c.getJSON(ctx, "altinn.ListStoredInstances", url, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Instances...)
		url = page.Next
	}
	return all, nil
}

func (c *InstanceClient) getJSON(ctx context.Context, op, url string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := c.checkStatus(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindDecode, "decode response body", err).WithOp(op)
	}
	return nil
}

func (c *InstanceClient) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "rate limiter interrupted", err).WithOp("altinn.do")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build request", err).WithOp("altinn.do")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "platform request failed", err).WithOp("altinn.do")
	}
	return resp, nil
}

func (c *InstanceClient) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := statusError(op, resp)
	c.log.UpstreamError("altinn", op, resp.StatusCode, err)
	return err
}

func statusError(op string, resp *http.Response) *apperr.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	var err *apperr.Error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		err = apperr.Unauthorized("platform rejected credentials")
	case resp.StatusCode == http.StatusForbidden:
		err = apperr.Forbidden("platform denied access")
	case resp.StatusCode == http.StatusNotFound:
		err = apperr.NotFound("platform resource not found")
	case resp.StatusCode >= 500:
		err = apperr.Transient("platform error")
	default:
		err = apperr.BadRequest("platform rejected request")
	}
	return err.WithOp(op).WithStatus(resp.StatusCode).WithDetails(string(body))
}
